package model

// AuthType names an Auth variant.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBasic  AuthType = "basic"
	AuthBearer AuthType = "bearer"
	AuthAPIKey AuthType = "apikey"
)

// Auth is one of NoAuth, BasicAuth, BearerAuth or APIKeyAuth. The set is
// closed: isAuth is unexported.
type Auth interface {
	Type() AuthType
	isAuth()
}

type NoAuth struct{}

type BasicAuth struct {
	Username string
	Password string
}

type BearerAuth struct {
	Token string
}

// APIKeyAuth sends Key in the header named Header.
type APIKeyAuth struct {
	Header string
	Key    string
}

func (NoAuth) Type() AuthType     { return AuthNone }
func (BasicAuth) Type() AuthType  { return AuthBasic }
func (BearerAuth) Type() AuthType { return AuthBearer }
func (APIKeyAuth) Type() AuthType { return AuthAPIKey }

func (NoAuth) isAuth()     {}
func (BasicAuth) isAuth()  {}
func (BearerAuth) isAuth() {}
func (APIKeyAuth) isAuth() {}
