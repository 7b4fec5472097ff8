package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

var authForce bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize access to the account's channel catalog",
	RunE:  runAuth,
}

func init() {
	authCmd.Flags().BoolVar(&authForce, "force", false, "re-run the grant flow even if a valid token is persisted")
}

func runAuth(cmd *cobra.Command, _ []string) error {
	settings, log, err := loadEnv()
	if err != nil {
		return err
	}
	svc, err := buildCatalog(settings, log)
	if err != nil {
		return err
	}
	if err := svc.Authenticate(cmd.Context(), authForce); err != nil {
		return err
	}
	fmt.Println("authorized")
	return nil
}

// consoleFlow runs the out-of-band grant: the user opens the consent URL and
// pastes the authorization code back on stdin.
func consoleFlow(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	cfg.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	url := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Open this URL in a browser, grant access, and paste the code below:\n%s\n\ncode: ", url)

	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("empty authorization code")
	}
	return cfg.Exchange(ctx, code)
}
