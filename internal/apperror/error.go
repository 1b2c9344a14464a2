package apperror

import "net/http"

// Error is a failure that is safe to show to the user, paired with the HTTP
// status it maps to.
type Error struct {
	StatusCode int
	Message    string
}

func New(statusCode int, message string) Error {
	return Error{StatusCode: statusCode, Message: message}
}

func (err Error) Error() string {
	return err.Message
}

var (
	ErrInvalidAmount       = New(http.StatusBadRequest, "amount must be a positive number")
	ErrInvalidPrice        = New(http.StatusBadRequest, "price must be a positive number")
	ErrInvalidSide         = New(http.StatusBadRequest, "order type must be buy or sell")
	ErrInsufficientCredits = New(http.StatusUnprocessableEntity, "insufficient credits")
	ErrInsufficientShares  = New(http.StatusUnprocessableEntity, "cannot sell more shares than held")
	ErrUnknownSymbol       = New(http.StatusNotFound, "unknown symbol")
	ErrQuoteUnavailable    = New(http.StatusBadGateway, "price is currently unavailable")
	ErrMarketData          = New(http.StatusBadGateway, "market data is currently unavailable")

	ErrInvalidDateRange = New(http.StatusBadRequest, "from and to must be YYYY-MM-DD with from <= to")
	ErrInvalidSort      = New(http.StatusBadRequest, "sort must be name or volume")

	ErrInvalidCredentials = New(http.StatusUnauthorized, "invalid email or password")
	ErrUnauthenticated    = New(http.StatusUnauthorized, "authentication required")
	ErrEmailTaken         = New(http.StatusConflict, "email is already registered")
	ErrUserNotFound       = New(http.StatusNotFound, "user not found")

	ErrInvalidPhoneNumber = New(http.StatusBadRequest, "phone number must contain digits only")
	ErrDisplayNameTooLong = New(http.StatusBadRequest, "display name must be at most 40 characters")
	ErrNotAnImage         = New(http.StatusUnsupportedMediaType, "profile picture must be an image")
	ErrImageTooLarge      = New(http.StatusRequestEntityTooLarge, "profile picture is too large")
	ErrPictureNotFound    = New(http.StatusNotFound, "no profile picture")
)
