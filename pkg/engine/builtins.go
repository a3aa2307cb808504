package engine

import (
	"fmt"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/types"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog/log"
)

func init() {
	rego.RegisterBuiltin1(totpVerify, func(bctx rego.BuiltinContext, op *ast.Term) (*ast.Term, error) {
		ret, err := builtinTotpVerify(op)
		if err != nil {
			log.Warn().
				Str("location", bctx.Location.String()).
				Msgf("%s: %v", totpVerify.Name, err)
			return nil, err
		}
		return ret, nil
	})
}

// totp_verify({"secret": s, "code": c}) checks a six digit SHA1 TOTP code.
// Optional keys: time (ns since epoch), skew (periods), period (seconds).
var totpVerify = &rego.Function{
	Name: "totp_verify",
	Decl: types.NewFunction(types.Args(types.NewObject(
		[]*types.StaticProperty{
			types.NewStaticProperty("secret", types.S),
			types.NewStaticProperty("code", types.S),
		},
		types.NewDynamicProperty(types.S, types.N),
	)), types.B),
}

type totpArgs struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
	Time   *int64 `json:"time"`
	Skew   *uint  `json:"skew"`
	Period uint   `json:"period"`
}

func builtinTotpVerify(op *ast.Term) (*ast.Term, error) {
	var args totpArgs
	if err := ast.As(op.Value, &args); err != nil {
		return nil, fmt.Errorf("invalid argument: %w", err)
	}

	if args.Code == "" || args.Secret == "" {
		return nil, fmt.Errorf("argument `code` and `secret` must not be empty")
	}

	t := time.Now()
	if args.Time != nil {
		t = time.Unix(0, *args.Time)
	}
	var skew uint = 1
	if args.Skew != nil {
		skew = *args.Skew
	}

	valid, err := totp.ValidateCustom(args.Code, args.Secret, t, totp.ValidateOpts{
		Skew:      skew,
		Period:    args.Period,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, err
	}

	return ast.BooleanTerm(valid), nil
}
