package static

// Set at build time with -ldflags "-X github.com/ezoidc/ezanswer/pkg/static.Version=..."
var (
	Version = "dev"
	Commit  = "none"
)
