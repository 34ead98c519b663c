package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/campus-session-client/app"
	"github.com/jrsteele09/campus-session-client/backend"
	"github.com/jrsteele09/campus-session-client/internal/config"
	"github.com/jrsteele09/campus-session-client/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const usage = `usage: studyclient <command> [flags]

commands:
  login     -u USER -p PASS [-remember]   log in
  register  -u USER -p PASS -email E -code C
  verify    -email E                      send a registration code
  whoami                                  show the current session
  visit     PATH                          navigate and print where you land
  get       PATH                          call an API endpoint and print its data
  logout    [-forget]                     log out; -forget drops remembered credentials
`

// stderrPresenter shows request failures on stderr.
type stderrPresenter struct{}

func (stderrPresenter) Present(message string) {
	fmt.Fprintln(os.Stderr, "!", message)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Warn().Err(err).Msg("reading .env failed")
	}
	c := config.New()
	config.ConfigureLogging(c)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, c, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c config.Config, command string, args []string) error {
	a, err := app.New(c, app.WithPresenter(stderrPresenter{}))
	if err != nil {
		return err
	}
	defer a.Close()

	switch command {
	case "login":
		return loginCommand(ctx, a, c, args)
	case "register":
		return registerCommand(ctx, a, args)
	case "verify":
		return verifyCommand(ctx, a, args)
	case "whoami":
		return whoamiCommand(ctx, a)
	case "visit":
		return visitCommand(ctx, a, args)
	case "get":
		return getCommand(ctx, a, args)
	case "logout":
		return logoutCommand(ctx, a, args)
	}
	fmt.Fprint(os.Stderr, usage)
	return errors.Errorf("unknown command %q", command)
}

func loginCommand(ctx context.Context, a *app.App, c config.Config, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	remember := fs.Bool("remember", false, "remember credentials for auto-login")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		return errors.New("login needs -u and -p")
	}

	displayAppname(c.GetAppName())
	if err := a.Start(ctx, "/login"); err != nil {
		return err
	}

	captcha, err := a.API.Captcha(ctx)
	if err != nil {
		return errors.Wrap(err, "fetching captcha")
	}
	answer := captcha.CaptchaText
	if !captcha.Solvable() {
		if answer, err = prompt("captcha (see image data returned by the server): "); err != nil {
			return err
		}
	}

	err = a.Session.Login(ctx, session.LoginRequest{
		Username:   *username,
		Password:   *password,
		Captcha:    answer,
		CaptchaID:  captcha.CaptchaID,
		RememberMe: *remember,
	})
	if err != nil {
		return err
	}
	if err := a.Router.Push(ctx, "/index"); err != nil {
		return err
	}
	profile, _ := a.Session.Profile()
	fmt.Printf("logged in as %s (%s), now at %s\n", profile.Username, profile.Role, a.Router.Current())
	return nil
}

func registerCommand(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	req := backend.RegisterRequest{}
	fs.StringVar(&req.Username, "u", "", "username")
	fs.StringVar(&req.Password, "p", "", "password")
	fs.StringVar(&req.Email, "email", "", "email address")
	fs.StringVar(&req.VerifyCode, "code", "", "verification code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.Session.Register(ctx, req); err != nil {
		return err
	}
	fmt.Println("registered, you can log in now")
	return nil
}

func verifyCommand(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	email := fs.String("email", "", "email address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.API.SendVerifyCode(ctx, *email); err != nil {
		return err
	}
	fmt.Println("verification code sent to", *email)
	return nil
}

func whoamiCommand(ctx context.Context, a *app.App) error {
	if err := a.Start(ctx, ""); err != nil {
		return err
	}
	profile, ok := a.Session.Profile()
	if !ok {
		fmt.Println("not logged in")
		return nil
	}
	fmt.Printf("%s (%s) id=%d email=%s\n", profile.Username, profile.Role, profile.UserID, profile.Email)
	return nil
}

func visitCommand(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 1 {
		return errors.New("visit needs a path")
	}
	if err := a.Start(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println(a.Router.Current())
	return nil
}

func getCommand(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 1 {
		return errors.New("get needs an API path")
	}
	if err := a.Start(ctx, ""); err != nil {
		return err
	}
	var data json.RawMessage
	if err := a.API.Get(ctx, args[0], nil, &data); err != nil {
		return err
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func logoutCommand(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	forget := fs.Bool("forget", false, "also forget remembered credentials")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a.Session.Restore()
	a.Logout(ctx, *forget)
	fmt.Println("logged out")
	return nil
}

func prompt(label string) (string, error) {
	fmt.Print(label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", errors.Wrap(err, "reading input")
	}
	return strings.TrimSpace(line), nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
