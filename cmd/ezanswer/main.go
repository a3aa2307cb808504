// ezanswer cli
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"al.essio.dev/pkg/shellescape"
	"github.com/ezoidc/ezanswer/pkg/client"
	"github.com/ezoidc/ezanswer/pkg/credentials"
	"github.com/ezoidc/ezanswer/pkg/models"
	"github.com/ezoidc/ezanswer/pkg/providers"
	"github.com/ezoidc/ezanswer/pkg/static"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	OutputJSON = "json"
	OutputText = "text"
)

type State struct {
	configPath  string
	query       string
	credentials string
	endpoint    string
	scopes      []string
	output      string
	curl        bool
	logLevel    string

	// Set once flags are validated and the command starts running
	started bool
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "github.com/ezoidc/ezanswer@%s (%s)\n", static.Version, static.Commit)
		},
	}
}

func newRootCmd(state *State) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ezanswer --query <text>",
		Short:         "Ask the answer API a question",
		Long:          `ezanswer cli`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			state.started = true
			cmd.SilenceUsage = true
			loadDotEnv()
			return state.run(cmd.Context(), cmd)
		},
	}
	rootCmd.AddCommand(newVersionCmd())

	flags := rootCmd.Flags()
	flags.StringVarP(&state.query, "query", "q", "", "The query text to send to the API")
	_ = rootCmd.MarkFlagRequired("query")

	flags.StringVarP(&state.configPath, "config", "c", os.Getenv("EZANSWER_CONFIG"),
		"Path to an optional configuration file (env: EZANSWER_CONFIG)")
	flags.StringVar(&state.credentials, "credentials", "",
		"Service account key, a file path or provider:id (env: EZANSWER_CREDENTIALS)")
	flags.StringVar(&state.endpoint, "endpoint", "",
		"URL of the answer API (env: EZANSWER_ENDPOINT)")
	flags.StringArrayVar(&state.scopes, "scope", nil,
		"Scope requested for the access token, repeatable (env: EZANSWER_SCOPES)")
	flags.StringVarP(&state.output, "output", "o", OutputJSON,
		"Output format: json or text")
	flags.BoolVar(&state.curl, "curl", false,
		"Print an equivalent curl command instead of sending the request")
	flags.StringVar(&state.logLevel, "log-level", "",
		"Log level (env: EZANSWER_LOG_LEVEL)")

	return rootCmd
}

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)

	state := &State{}
	os.Exit(execute(context.Background(), state, newRootCmd(state)))
}

// Exit status is 2 when flags are invalid and usage was printed, 1 when
// the command failed.
func execute(ctx context.Context, state *State, cmd *cobra.Command) int {
	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Send()
		if !state.started {
			return 2
		}
		return 1
	}
	return 0
}

// Load .env from the working directory, once flags are valid
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}
}

// Merge configuration file, environment and flags
func (s *State) configure(cmd *cobra.Command) (*models.Configuration, error) {
	if s.output != OutputJSON && s.output != OutputText {
		return nil, fmt.Errorf("invalid output format: %s", s.output)
	}

	config, err := models.ReadConfiguration(s.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("credentials") {
		if err := config.Credentials.Decode(s.credentials); err != nil {
			return nil, err
		}
	}
	if flags.Changed("endpoint") {
		config.Endpoint = s.endpoint
	}
	if flags.Changed("scope") {
		config.Scopes = s.scopes
	}
	if flags.Changed("log-level") {
		config.LogLevel = s.logLevel
	}

	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, err
	}
	log.Logger = log.Logger.Level(level)

	return config, nil
}

func (s *State) run(ctx context.Context, cmd *cobra.Command) error {
	config, err := s.configure(cmd)
	if err != nil {
		return err
	}

	httpClient := config.Client()
	resolver := providers.NewResolver().WithDefaultProviders()
	creds, err := credentials.Load(ctx, resolver, config.Credentials, config.Scopes,
		credentials.WithHTTPClient(httpClient))
	if err != nil {
		return err
	}

	answers := client.NewAnswerClient(httpClient, creds, config.Endpoint)
	out := cmd.OutOrStdout()

	if s.curl {
		return printCurl(ctx, out, answers, s.query)
	}

	resp, err := answers.Answer(ctx, s.query)
	if err != nil {
		return err
	}

	if s.output == OutputText && resp.OK() {
		answer, err := models.ParseAnswer(resp.Body)
		if err != nil {
			return err
		}
		return printAnswer(out, answer)
	}

	return models.JSONEncoder(out).Encode(resp.Body)
}

func printAnswer(w io.Writer, answer *models.Answer) error {
	if _, err := fmt.Fprintln(w, answer.AnswerText); err != nil {
		return err
	}

	if len(answer.RelatedQuestions) > 0 {
		fmt.Fprint(w, "\nRelated questions:\n")
		for _, q := range answer.RelatedQuestions {
			fmt.Fprintf(w, "  - %s\n", q)
		}
	}

	if len(answer.Sources) > 0 {
		fmt.Fprint(w, "\nSources:\n")
		for i, source := range answer.Sources {
			switch {
			case source.Title == "":
				fmt.Fprintf(w, "  [%d] %s\n", i+1, source.URI)
			case source.URI == "":
				fmt.Fprintf(w, "  [%d] %s\n", i+1, source.Title)
			default:
				fmt.Fprintf(w, "  [%d] %s - %s\n", i+1, source.Title, source.URI)
			}
		}
	}
	return nil
}

func printCurl(ctx context.Context, w io.Writer, answers *client.AnswerClient, query string) error {
	req, err := answers.NewRequest(ctx, query)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "curl -X POST %s \\\n  -H %s \\\n  -H %s \\\n  -d %s\n",
		shellescape.Quote(req.URL.String()),
		shellescape.Quote("Authorization: "+req.Header.Get("Authorization")),
		shellescape.Quote("Content-Type: "+req.Header.Get("Content-Type")),
		shellescape.Quote(string(body)),
	)
	return err
}
