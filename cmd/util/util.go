package util

import (
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/tKV/lib/db"
	"github.com/ValentinKolb/tKV/lib/db/engines/grove"
	"github.com/ValentinKolb/tKV/lib/entity/codec"
	"github.com/ValentinKolb/tKV/lib/logging"
	"github.com/ValentinKolb/tKV/lib/store"
	"github.com/ValentinKolb/tKV/lib/store/localstore"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("tkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// InitLoggers sets up the logger facilities from the configured level
func InitLoggers() {
	logging.InitLoggers(viper.GetString("log-level"))
}

// GetCodec creates an entity codec based on configuration
func GetCodec() (codec.ICodec, error) {
	switch viper.GetString("codec") {
	case "json":
		return codec.NewJSONCodec(), nil
	case "gob":
		return codec.NewGOBCodec(), nil
	case "binary":
		return codec.NewBinaryCodec(), nil
	default:
		return nil, fmt.Errorf("invalid codec %s", viper.GetString("codec"))
	}
}

// GetDataPath retrieves the configured snapshot file path
func GetDataPath() string {
	return viper.GetString("data")
}

// OpenStore creates the local store and, if the configured snapshot file
// exists, restores its state from it.
func OpenStore() (store.IStore, error) {
	c, err := GetCodec()
	if err != nil {
		return nil, err
	}

	s := localstore.NewLocalStore(func() db.RecordDB {
		return grove.NewGroveDB(nil)
	}, c)

	path := GetDataPath()
	if path == "" {
		return s, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to open snapshot %s: %w", path, err)
	}
	defer f.Close()

	if err := s.Load(f); err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", path, err)
	}
	return s, nil
}

// SaveStore persists the store to the configured snapshot file. Without a
// configured path this is a no-op.
func SaveStore(s store.IStore) error {
	path := GetDataPath()
	if path == "" {
		return nil
	}

	// write to a temp file first so a failed save never truncates the
	// previous snapshot
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create snapshot %s: %w", tmp, err)
	}

	if err := s.Save(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	return os.Rename(tmp, path)
}
