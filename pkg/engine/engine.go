package engine

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ezoidc/ezanswer/pkg/models"
	"github.com/ezoidc/ezanswer/pkg/static"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/storage/inmem"
	"github.com/open-policy-agent/opa/v1/topdown/print"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Evaluates the query policy of the server. Policies are Rego rules in
// package ezanswer: `allow` grants a query, every message in the `deny` set
// rejects it.
type Engine struct {
	// Compiled Rego query
	Query rego.PreparedEvalQuery
	// Engine configuration
	Configuration *models.Configuration
}

type Input struct {
	// Query text sent by the caller
	Query string `json:"query"`
	// Free-form parameters of the request
	Params map[string]any `json:"params"`
	// Validated JWT claims, empty when authentication is disabled
	Claims map[string]any `json:"claims"`
	// Name of the issuer of the token
	Issuer string `json:"issuer"`
}

type Decision struct {
	Allow   bool     `json:"allow"`
	Reasons []string `json:"reasons"`
}

func NewEngine(config *models.Configuration) *Engine {
	return &Engine{
		Configuration: config,
	}
}

//go:embed ezanswer.rego
var ezanswerRego string

// Prepare the engine for evaluation
func (e *Engine) Compile(ctx context.Context) error {
	c, err := ast.CompileModulesWithOpt(map[string]string{
		"ezanswer.rego": ezanswerRego,
		"policy.rego":   "package ezanswer\n" + e.Configuration.Policy,
	}, ast.CompileOpts{
		EnablePrintStatements: true,
		ParserOptions: ast.ParserOptions{
			RegoVersion: ast.RegoV1,
		},
	})
	if err != nil {
		return err
	}

	issuers := []string{}
	for name := range e.Configuration.Issuers {
		issuers = append(issuers, name)
	}
	sort.Strings(issuers)

	store := inmem.NewFromObject(map[string]interface{}{
		"issuers":  issuers,
		"endpoint": e.Configuration.Endpoint,
		"version":  static.Version,
	})
	query, err := rego.New(
		rego.Query("data.ezanswer.decision"),
		rego.Compiler(c),
		rego.Store(store),
	).PrepareForEval(ctx)
	if err != nil {
		return err
	}

	e.Query = query
	return nil
}

// Decide whether a query may be forwarded
func (e *Engine) Evaluate(ctx context.Context, input *Input) (*Decision, error) {
	rs, err := e.Query.Eval(ctx,
		rego.EvalInput(input),
		rego.EvalPrintHook(e),
	)
	if err != nil {
		return nil, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, fmt.Errorf("no result set")
	}

	data, err := json.Marshal(rs[0].Expressions[0].Value)
	if err != nil {
		return nil, err
	}

	var decision Decision
	if err = json.Unmarshal(data, &decision); err != nil {
		return nil, fmt.Errorf("invalid policy decision: %w", err)
	}
	sort.Strings(decision.Reasons)
	return &decision, nil
}

// Handle print calls from Rego. A "level: " prefix selects the log level.
func (e *Engine) Print(ctx print.Context, msg string) error {
	line := log.Debug()
	before, after, found := strings.Cut(msg, ": ")
	if found {
		level, err := zerolog.ParseLevel(before)
		if err == nil && level != zerolog.NoLevel {
			line = log.WithLevel(level)
			msg = after
		}
	}

	line.Any("request_id", ctx.Context.Value("request_id")).
		Str("location", ctx.Location.String()).
		Msg(msg)
	return nil
}
