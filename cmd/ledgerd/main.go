package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MarkoPoloResearchLab/cipherledger/internal/fieldcipher"
	"github.com/MarkoPoloResearchLab/cipherledger/internal/ledgerd"
	"github.com/MarkoPoloResearchLab/cipherledger/internal/transportcipher"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagListenAddr        = "listen-addr"
	flagDatabaseURL       = "database-url"
	flagStoreEngine       = "store-engine"
	flagAllowedOrigins    = "allowed-origins"
	flagFieldKey          = "field-key"
	flagTransportIdentity = "transport-identity"
	flagMaskStoreFailures = "mask-store-failures"
	flagShutdownTimeout   = "shutdown-timeout"
	flagEnvFile           = "env-file"
	flagRecipient         = "recipient"
	envPrefix             = "LEDGERD"
	defaultEnvFile        = ".env"
)

var configFlags = []string{
	flagListenAddr,
	flagDatabaseURL,
	flagStoreEngine,
	flagAllowedOrigins,
	flagFieldKey,
	flagTransportIdentity,
	flagMaskStoreFailures,
	flagShutdownTimeout,
}

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := ledgerd.Config{}
	cmd := &cobra.Command{
		Use:           "ledgerd",
		Short:         "Encrypted transaction ledger over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, &cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return ledgerd.Run(ctx, cfg)
		},
	}

	cmd.Flags().String(flagListenAddr, "", "HTTP listen address (default :8080)")
	cmd.Flags().String(flagDatabaseURL, "", "postgres:// or sqlite:// database url (default sqlite:///tmp/cipherledger.db)")
	cmd.Flags().String(flagStoreEngine, "", "persistence engine: gorm or pgx (default gorm)")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagFieldKey, "", "base64 at-rest field key; prefer LEDGERD_FIELD_KEY")
	cmd.Flags().String(flagTransportIdentity, "", "age identity for inbound fields; prefer LEDGERD_TRANSPORT_IDENTITY")
	cmd.Flags().Bool(flagMaskStoreFailures, false, "report data access failures as not found")
	cmd.Flags().Duration(flagShutdownTimeout, 0, "graceful shutdown timeout (default 5s)")
	cmd.PersistentFlags().String(flagEnvFile, defaultEnvFile, "optional dotenv file loaded before reading LEDGERD_ variables")

	cmd.AddCommand(newKeygenCommand(), newSealCommand())
	return cmd
}

func newKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print fresh field and transport keys as LEDGERD_ variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeKeys(cmd.OutOrStdout())
		},
	}
}

func newSealCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seal VALUE",
		Short: "Seal a value to a transport public key for use in requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipient, err := cmd.Flags().GetString(flagRecipient)
			if err != nil {
				return err
			}
			sealed, err := transportcipher.Seal(recipient, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return err
		},
	}
	cmd.Flags().String(flagRecipient, "", "age1... public key served at /keys/transport (required)")
	_ = cmd.MarkFlagRequired(flagRecipient)
	return cmd
}

func writeKeys(out io.Writer) error {
	fieldKey, err := fieldcipher.GenerateEncodedKey()
	if err != nil {
		return err
	}
	identity, recipient, err := transportcipher.GenerateEncodedIdentity()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s_FIELD_KEY=%s\n%s_TRANSPORT_IDENTITY=%s\n# transport public key: %s\n",
		envPrefix, fieldKey, envPrefix, identity, recipient)
	return err
}

func loadConfig(cmd *cobra.Command, cfg *ledgerd.Config) error {
	envFile, err := cmd.Flags().GetString(flagEnvFile)
	if err != nil {
		return err
	}
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range configFlags {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.StoreEngine = strings.TrimSpace(v.GetString(flagStoreEngine))
	cfg.AllowedOrigins = ledgerd.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.FieldKey = v.GetString(flagFieldKey)
	cfg.TransportIdentity = v.GetString(flagTransportIdentity)
	cfg.MaskStoreFailures = v.GetBool(flagMaskStoreFailures)
	cfg.ShutdownTimeout = v.GetDuration(flagShutdownTimeout)

	return cfg.Validate()
}

// loadEnvFile never overrides variables already set in the environment.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}
