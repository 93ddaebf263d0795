package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iksnae/chatstream/internal"
	"github.com/iksnae/chatstream/internal/config"
)

var (
	verbose    bool
	configPath string
	storeKind  string
	dataDir    string
	serverURL  string
	noPersist  bool

	// cfg is loaded before every subcommand runs
	cfg *config.Config

	// Version information (set via ldflags at build time)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatstream",
	Short: "Chat with an AI coding assistant from the terminal",
	Long: `chatstream talks to a chat relay that streams model replies, keeps the
resulting chats in a local history and applies the files the assistant writes
to a project directory.

Run 'chatstream serve' to start the relay in front of an OpenAI-compatible API,
then 'chatstream chat' to start a conversation. Chats are saved locally and can
be listed, shown, renamed and exported.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		internal.SetVerbose(verbose)

		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		if !verbose {
			internal.SetLogLevel(cfg.Level())
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and lets command-line flags win over it
func loadConfig() (*config.Config, error) {
	var (
		loaded *config.Config
		err    error
	)
	if configPath != "" {
		loaded, err = config.LoadFrom(configPath)
	} else {
		loaded, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if storeKind != "" {
		loaded.Store = storeKind
	}
	if dataDir != "" {
		loaded.DataDir = dataDir
	}
	if serverURL != "" {
		loaded.ServerURL = serverURL
	}
	if noPersist {
		off := false
		loaded.Persistence = &off
	}
	if loaded.DataDir == "" {
		paths, err := internal.DetectStoragePaths()
		if err != nil {
			return nil, err
		}
		loaded.DataDir = paths.DataDir
	}
	if err := loaded.Validate(); err != nil {
		return nil, err
	}
	return loaded, nil
}

// openStore opens the configured chat store
func openStore() (internal.SessionStore, error) {
	if !cfg.PersistenceEnabled() {
		return internal.NewMemoryStore(), nil
	}
	store, err := internal.OpenStore(cfg.Store, cfg.StoreDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store, err)
	}
	return store, nil
}

// openStoreOrMemory opens the configured store and falls back to an
// in-memory one, so chatting still works when history is unavailable.
func openStoreOrMemory(notifier *internal.TerminalNotifier) internal.SessionStore {
	store, err := openStore()
	if err != nil {
		internal.LogDebug("store unavailable: %v", err)
		notifier.Warn(fmt.Sprintf("Chat history is unavailable, this chat will not be saved (%v)", err))
		return internal.NewMemoryStore()
	}
	return store
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.config/chatstream/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&storeKind, "store", "", "Chat store: sqlite, file or memory")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory the chat store lives in")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Chat relay URL")
	rootCmd.PersistentFlags().BoolVar(&noPersist, "no-persist", false, "Keep chats in memory only")

	rootCmd.SetVersionTemplate(fmt.Sprintf("chatstream version %s (commit: %s, built: %s)\n", version, commit, date))
}
