package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
	"github.com/nextlevelbuilder/tinyclaw/internal/sessions"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("tinyclaw doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	var p config.Paths
	if configHome != "" {
		p = config.PathsAt(configHome)
	} else {
		p = config.ResolvePaths()
	}
	config.LoadDotEnv(p)

	fmt.Printf("  Config home:  %s", p.ConfigHome)
	if _, err := os.Stat(p.ConfigHome); err != nil {
		fmt.Println(" (NOT FOUND — run: tinyclaw onboard)")
	} else {
		fmt.Println(" (OK)")
	}

	settings, err := config.LoadSettings(p)
	if err != nil {
		fmt.Printf("  Settings: PARSE FAILED (%s)\n", err)
		return
	}
	if verr := settings.Validate(); verr != nil {
		fmt.Printf("  Settings: INVALID (%s)\n", verr)
	} else {
		fmt.Printf("  Settings: OK (%d agents, %d teams)\n", len(settings.Agents), len(settings.Teams))
	}

	fmt.Println()
	fmt.Println("  Agent CLIs:")
	checkBinary("claude")
	checkBinary("codex")

	fmt.Println()
	fmt.Println("  Agents:")
	if len(settings.Agents) == 0 {
		fmt.Println("    (none configured)")
	}
	for _, id := range settings.AgentIDs() {
		a := settings.Agents[id]
		fmt.Printf("    %-14s provider=%s model=%s\n", id, a.Provider, orDefault(a.Model, "(default)"))
	}

	fmt.Println()
	creds, err := config.LoadCredentials(p)
	switch {
	case err != nil:
		fmt.Printf("  Discord token: READ FAILED (%s)\n", err)
	case creds.Discord.BotToken == "":
		fmt.Println("  Discord token: NOT SET (set DISCORD_BOT_TOKEN or run: tinyclaw onboard)")
	default:
		fmt.Println("  Discord token: OK")
	}

	fmt.Println()
	fmt.Print("  Queue tree:   ")
	if err := p.EnsureTree(); err != nil {
		fmt.Printf("NOT WRITABLE (%s)\n", err)
	} else {
		fmt.Println("OK")
	}

	// Acquire-and-release probe. Fails when a crashed process left a lock
	// newer than the stale threshold.
	fmt.Print("  Session lock: ")
	store := sessions.NewStore(p.SessionsFile(), p.SessionsLockFile())
	if err := store.Delete("doctor_probe"); err != nil {
		fmt.Printf("NOT ACQUIRABLE (%s)\n", err)
	} else {
		fmt.Println("OK")
	}
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-8s NOT FOUND in PATH\n", name)
		return
	}
	fmt.Printf("    %-8s %s\n", name, path)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
