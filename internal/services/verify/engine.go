// Package verify decides whether a credential submission proves a channel
// belongs to the player it was matched to.
package verify

import (
	"errors"
	"fmt"

	"github.com/mcoot/partygate/internal/model"
)

// Method is one configured check
type Method string

const (
	MethodToken    Method = "token"
	MethodAddress  Method = "address"
	MethodUsername Method = "username"
	MethodGameCode Method = "gamecode"
)

// DefaultMethods is used when no methods are configured
func DefaultMethods() []Method {
	return []Method{MethodToken, MethodAddress}
}

// Failure reasons reported to logs and to the rejected client
const (
	ReasonErroneousToken      = "erroneous token"
	ReasonInvalidToken        = "invalid token"
	ReasonTokenExpired        = "token expired"
	ReasonUsernameDiscrepancy = "username discrepancy"
	ReasonGameCodeDiscrepancy = "game-code discrepancy"
	ReasonAddressMismatch     = "non-matching address"
	ReasonUsernameMismatch    = "non-matching username"
	ReasonGameCodeMismatch    = "non-matching game code"
)

// Connection is what the engine knows about the channel being verified
type Connection struct {
	DisplayName string // Name the slot was reserved under
	Address     string // Address the slot was reserved from
	GameCode    string
	RemoteAddr  string // Address the channel currently comes from
}

// Result is the outcome of a verification
type Result struct {
	Valid   bool
	Reasons []string
}

// Validator is an external check supplied by the game. Returning ok=false
// means the validator has no opinion and is skipped.
type Validator func(conn Connection) (res Result, ok bool)

// TokenParser verifies signed credentials
type TokenParser interface {
	Parse(token string) (username, gameCode string, err error)
}

// Config holds the engine configuration
type Config struct {
	Methods           []Method
	ValidateJoin      Validator
	ValidateReconnect Validator
}

// Engine evaluates credential submissions
type Engine struct {
	methods           map[Method]bool
	tokens            TokenParser
	validateJoin      Validator
	validateReconnect Validator
}

// New creates an Engine. tokens may be nil only if MethodToken is not configured.
func New(cfg Config, tokens TokenParser) (*Engine, error) {
	methods := cfg.Methods
	if len(methods) == 0 {
		methods = DefaultMethods()
	}

	set := make(map[Method]bool, len(methods))
	for _, m := range methods {
		switch m {
		case MethodToken, MethodAddress, MethodUsername, MethodGameCode:
			set[m] = true
		default:
			return nil, fmt.Errorf("unknown verification method %q", m)
		}
	}
	if set[MethodToken] && tokens == nil {
		return nil, errors.New("token verification requires a token parser")
	}

	return &Engine{
		methods:           set,
		tokens:            tokens,
		validateJoin:      cfg.ValidateJoin,
		validateReconnect: cfg.ValidateReconnect,
	}, nil
}

// Verify runs the external validator for the mode, then every configured
// method. All checks run; the result is valid only if every check passed.
func (e *Engine) Verify(conn Connection, payload model.Credentials, reconnect bool) Result {
	res := Result{Valid: true}

	validator := e.validateJoin
	if reconnect {
		validator = e.validateReconnect
	}
	if validator != nil {
		if ext, ok := validator(conn); ok {
			res.Valid = res.Valid && ext.Valid
			res.Reasons = append(res.Reasons, ext.Reasons...)
		}
	}

	if e.methods[MethodToken] {
		res.add(e.checkToken(conn, payload.Token)...)
	} else {
		if e.methods[MethodUsername] && payload.DisplayName != conn.DisplayName {
			res.add(ReasonUsernameMismatch)
		}
		if e.methods[MethodGameCode] && payload.GameCode != conn.GameCode {
			res.add(ReasonGameCodeMismatch)
		}
	}

	if e.methods[MethodAddress] && conn.Address != conn.RemoteAddr {
		res.add(ReasonAddressMismatch)
	}

	return res
}

func (e *Engine) checkToken(conn Connection, tok string) []string {
	username, gameCode, err := e.tokens.Parse(tok)
	switch {
	case errors.Is(err, model.ErrTokenExpired):
		return []string{ReasonTokenExpired}
	case errors.Is(err, model.ErrMissingClaims):
		return []string{ReasonInvalidToken}
	case err != nil:
		return []string{ReasonErroneousToken}
	}

	var reasons []string
	if username != conn.DisplayName {
		reasons = append(reasons, ReasonUsernameDiscrepancy)
	}
	if gameCode != conn.GameCode {
		reasons = append(reasons, ReasonGameCodeDiscrepancy)
	}
	return reasons
}

func (r *Result) add(reasons ...string) {
	if len(reasons) == 0 {
		return
	}
	r.Valid = false
	r.Reasons = append(r.Reasons, reasons...)
}
