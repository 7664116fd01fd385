package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/celestix/gotgproto/storage"
	"github.com/gotd/td/session/tdesktop"
	"github.com/mdp/qrterminal/v3"
	"gorm.io/gorm"

	"github.com/diegod088/bot-bens11-sub000/internal/config"
	"github.com/diegod088/bot-bens11-sub000/internal/database"
	"github.com/diegod088/bot-bens11-sub000/internal/telegram"
)

func main() {
	fmt.Println("=== media bot: secondary session login ===")
	fmt.Println("this tool signs in the account used to read channels and")
	fmt.Println("stores the session where the bot loads it on start-up")
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fail("load config", err)
	}
	if cfg.TGApiID == 0 || cfg.TGApiHash == "" {
		fail("config", fmt.Errorf("TG_API_ID and TG_API_HASH are required"))
	}

	db, err := database.OpenSessionStore(cfg.DatabaseURL, cfg.TGSessionDB)
	if err != nil {
		fail("open session store", err)
	}
	if err := db.AutoMigrate(&storage.Session{}); err != nil {
		fail("prepare sessions table", err)
	}
	if telegram.HasStoredSession(db) {
		fmt.Println("warning: a session is already stored and will be replaced")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader := bufio.NewReader(os.Stdin)

	fmt.Println("choose authentication method:")
	fmt.Println("  1. scan a QR code with the phone app (recommended)")
	fmt.Println("  2. import a telegram desktop session")
	fmt.Println("  3. phone number and login code")
	fmt.Print("\nenter choice [1]: ")

	switch readLine(reader) {
	case "2":
		err = authWithTData(cfg, db, reader)
	case "3":
		err = authWithPhone(cfg, db, reader)
	default:
		err = authWithQR(ctx, cfg, db)
	}
	if err != nil {
		fail("authentication", err)
	}

	fmt.Println("\n✓ session stored, restart the bot to pick it up")
	fmt.Println("\n⚠️  the session gives full access to the account, keep the database private")
}

// authWithQR runs the same flow the dashboard uses, rendering each login
// token in the terminal.
func authWithQR(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	m := telegram.NewManager(cfg, db)
	defer m.Stop()

	fmt.Println("\nopen Settings > Devices > Link Desktop Device and scan:")
	return m.StartQR(ctx, func(url string) {
		fmt.Println()
		qrterminal.GenerateHalfBlock(url, qrterminal.L, os.Stdout)
		fmt.Println("the code refreshes automatically until it is scanned")
	})
}

// authWithTData copies a Telegram Desktop login into the sessions table.
func authWithTData(cfg *config.Config, db *gorm.DB, reader *bufio.Reader) error {
	tdataPath := telegramDesktopPath()
	accounts, err := tdesktop.Read(tdataPath, nil)
	if err != nil || len(accounts) == 0 {
		fmt.Printf("no session found at: %s\n", tdataPath)
		fmt.Print("enter telegram desktop path: ")
		customPath := readLine(reader)
		if customPath == "" {
			return fmt.Errorf("no telegram desktop session")
		}
		if !strings.HasSuffix(customPath, "tdata") {
			customPath = filepath.Join(customPath, "tdata")
		}
		accounts, err = tdesktop.Read(customPath, nil)
		if err != nil {
			return fmt.Errorf("read tdata: %w", err)
		}
		if len(accounts) == 0 {
			return fmt.Errorf("no accounts in %s", customPath)
		}
	}

	account := accounts[0]
	if len(accounts) > 1 {
		fmt.Printf("\nfound %d telegram accounts, select one [1-%d]: ", len(accounts), len(accounts))
		if n, err := strconv.Atoi(readLine(reader)); err == nil && n >= 1 && n <= len(accounts) {
			account = accounts[n-1]
		}
	}

	data, err := telegram.SessionFromTData(account)
	if err != nil {
		return err
	}
	if err := telegram.SaveSession(db, data); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// authWithPhone signs in interactively; gotgproto writes the session
// straight into the sessions table.
func authWithPhone(cfg *config.Config, db *gorm.DB, reader *bufio.Reader) error {
	fmt.Print("enter your phone number (with country code, e.g. +1234567890): ")
	phone := readLine(reader)

	fmt.Println("\nauthenticating... (check telegram for code)")

	client, err := gotgproto.NewClient(
		cfg.TGApiID,
		cfg.TGApiHash,
		gotgproto.ClientTypePhone(phone),
		&gotgproto.ClientOpts{
			Session:          sessionMaker.SqlSession(db.Dialector),
			DisableCopyright: true,
		},
	)
	if err != nil {
		return err
	}
	defer client.Stop()

	fmt.Printf("logged in as: @%s\n", client.Self.Username)
	return nil
}

// telegramDesktopPath returns the default Telegram Desktop data directory.
func telegramDesktopPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Telegram Desktop", "tdata")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Telegram Desktop", "tdata")
	default: // linux
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "TelegramDesktop", "tdata")
	}
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func fail(step string, err error) {
	fmt.Printf("error: %s: %v\n", step, err)
	os.Exit(1)
}
