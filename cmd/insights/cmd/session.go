package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"insights-backend/internal/credstore"
	"insights-backend/internal/scrapers/linkedin"
	"insights-backend/internal/session"

	"github.com/go-resty/resty/v2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	probeSession   bool
	browserLogin   bool
	browserTimeout time.Duration
	daemonAddr     string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspects and renews the authenticated session.",
}

func init() {
	sessionStatusCmd.Flags().BoolVar(&probeSession, "probe", false, "Check the stored cookies against the site.")
	sessionLoginCmd.Flags().BoolVar(&browserLogin, "browser", false, "Log in through a browser window instead of the login form.")
	sessionLoginCmd.Flags().DurationVar(&browserTimeout, "timeout", 5*time.Minute, "How long to wait for a browser login.")
	sessionVerifyCmd.Flags().StringVar(&daemonAddr, "addr", "", "Address of the running daemon, defaults to serve.addr.")

	sessionCmd.AddCommand(sessionStatusCmd, sessionImportCmd, sessionLoginCmd, sessionVerifyCmd)
	rootCmd.AddCommand(sessionCmd)
}

func cookieExpiry(artifact credstore.Artifact) string {
	c, ok := artifact.Cookie(credstore.RequiredCookie)
	if !ok {
		return "missing"
	}
	if c.Expires.IsZero() {
		return "session cookie"
	}
	return c.Expires.Format(time.DateTime)
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Prints the stored credential artifact.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		config := configFrom(ctx)
		creds := credstore.NewFileStore(config.Session.CookieFile)

		t := newTable()
		t.SetTitle("Session")
		t.AppendRow(table.Row{"File", creds.Path()})
		t.AppendRow(table.Row{"Account", config.Session.Username})

		artifact, err := creds.Load(ctx)
		if errors.Is(err, credstore.ErrNoArtifact) {
			t.AppendRow(table.Row{"Artifact", "none"})
			t.Render()
			return nil
		}
		if err != nil {
			return err
		}

		validity := "usable"
		if err := artifact.Validate(time.Now()); err != nil {
			validity = err.Error()
		}
		t.AppendRows([]table.Row{
			{"Source", artifact.Source},
			{"Captured", artifact.CapturedAt.Local().Format(time.DateTime)},
			{"Cookies", len(artifact.Cookies)},
			{credstore.RequiredCookie + " expires", cookieExpiry(artifact)},
			{"Validity", validity},
		})

		if probeSession && validity == "usable" {
			scraper, err := linkedin.New(config.Linkedin)
			if err != nil {
				return err
			}
			ok, err := scraper.Authenticator().Probe(ctx, artifact.Cookies)
			switch {
			case err != nil:
				t.AppendRow(table.Row{"Probe", err.Error()})
			case ok:
				t.AppendRow(table.Row{"Probe", "authenticated"})
			default:
				t.AppendRow(table.Row{"Probe", "rejected"})
			}
		}
		t.Render()
		return nil
	},
}

var sessionImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Stores cookies exported from a browser (cookie extension export or playwright storage state).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		config := configFrom(ctx)

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		artifact, err := credstore.ParseExport(data, time.Now())
		if err != nil {
			return err
		}
		if err := artifact.Validate(time.Now()); err != nil {
			return fmt.Errorf("export is not usable: %w", err)
		}
		if err := credstore.NewFileStore(config.Session.CookieFile).Save(ctx, artifact); err != nil {
			return err
		}
		fmt.Printf("stored %d cookies in %s\n", len(artifact.Cookies), config.Session.CookieFile)
		return nil
	},
}

// promptCodes asks for verification codes on stdin while the manager waits for one.
func promptCodes(ctx context.Context, sessions *session.Manager) {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	prompted := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending := sessions.Status().VerificationPending
			if pending && !prompted {
				fmt.Print("verification code (or approve the login in the app): ")
			}
			prompted = pending
		case code := <-lines:
			if code == "" {
				continue
			}
			if err := sessions.SubmitVerificationCode(code); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
			prompted = false
		}
	}
}

var sessionLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Logs in and stores the session, prompting for a verification code when asked for one.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		config := configFrom(ctx)

		a, err := openApp(ctx, config)
		if err != nil {
			return err
		}
		defer a.Close()

		if browserLogin {
			artifact, err := linkedin.BrowserLogin(ctx, config.Linkedin, linkedin.BrowserConfig{
				Timeout:   browserTimeout,
				UserAgent: config.Linkedin.UserAgent,
			})
			if err != nil {
				return err
			}
			if err := a.sessions.SupplyCookies(ctx, artifact); err != nil {
				return err
			}
		}

		promptCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go promptCodes(promptCtx, a.sessions)

		handle, err := a.sessions.Acquire(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("authenticated, %s stored in %s\n", handle, config.Session.CookieFile)
		return nil
	},
}

var sessionVerifyCmd = &cobra.Command{
	Use:   "verify <code>",
	Short: "Hands a verification code to the running daemon.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		addr := daemonAddr
		if addr == "" {
			addr = configFrom(ctx).Serve.Addr
		}

		res, err := resty.New().R().
			SetContext(ctx).
			SetBody(map[string]string{"code": args[0]}).
			Post(fmt.Sprintf("http://%s/session/verify", addr))
		if err != nil {
			return err
		}
		if res.IsError() {
			return fmt.Errorf("daemon refused the code: %s %s", res.Status(), strings.TrimSpace(res.String()))
		}
		fmt.Println("code accepted for verification")
		return nil
	},
}
