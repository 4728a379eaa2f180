package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"aura.town/audio"
	"aura.town/gemini"
	"aura.town/mic"
	"aura.town/playback"
	"aura.town/session"
	"aura.town/store"
	"aura.town/stt"
	"aura.town/ui"
	"aura.town/voice"
	"aura.town/wakeword"
	"aura.town/web"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)
	listenCmd.Flags().
		Bool("web", false, "Serve the status page while listening")
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(serveCmd)

	// Add persistent flags
	rootCmd.PersistentFlags().String("gemini-api-key", "", "Gemini API key")
	rootCmd.PersistentFlags().
		String("speechmatics-api-key", "", "Speechmatics API key")
	rootCmd.PersistentFlags().
		String("database-url", "", "Postgres connection string")
	rootCmd.PersistentFlags().Int("web-port", 8080, "Web server port")
	rootCmd.PersistentFlags().
		String("language", "en", "Speech recognition language")

	// Bind flags to viper
	viper.BindPFlag(
		"gemini_api_key",
		rootCmd.PersistentFlags().Lookup("gemini-api-key"),
	)
	viper.BindPFlag(
		"speechmatics_api_key",
		rootCmd.PersistentFlags().Lookup("speechmatics-api-key"),
	)
	viper.BindPFlag(
		"database_url",
		rootCmd.PersistentFlags().Lookup("database-url"),
	)
	viper.BindPFlag("web_port", rootCmd.PersistentFlags().Lookup("web-port"))
	viper.BindPFlag("language", rootCmd.PersistentFlags().Lookup("language"))
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Printf("Error reading config file: %s\n", err)
		}
	}

	logger = log.New(os.Stderr)
}

var rootCmd = &cobra.Command{
	Use:   "aura",
	Short: "Aura is a voice assistant you talk to",
	Long:  `Aura listens for its name, holds a spoken conversation, and remembers what you talked about.`,
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Start the assistant",
	Long:  `Start the assistant with ambient wake-word listening and a terminal transcript view.`,
	Run:   runListen,
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure your profile and API keys",
	Run: func(cmd *cobra.Command, args []string) {
		RunSetup()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent conversation turns in a table",
	Run:   runHistory,
}

var sayCmd = &cobra.Command{
	Use:   "say <text>",
	Short: "Speak a phrase through the assistant's voice",
	Args:  cobra.MinimumNArgs(1),
	Run:   runSay,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the status and conversation pages",
	Run:   runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, dataLogger *log.Logger) (store.Store, error) {
	dsn := viper.GetString("database_url")
	if dsn == "" {
		dataLogger.Warn("no database configured, conversations will not persist")
		return store.NewMemory(), nil
	}
	return store.OpenPostgres(ctx, dsn)
}

// ambientWake runs a wake-word listener over its own microphone capture
// so the session's capture stays free for the live stream. The capture
// is held open only while listening is on.
type ambientWake struct {
	phrase      string
	language    string
	recognition stt.SpeechRecognition
	onWake      func()
	log         *log.Logger

	mu       sync.Mutex
	listener *wakeword.Listener
	capture  *mic.Capture
}

func (w *ambientWake) SetListening(on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !on {
		if w.listener == nil {
			return
		}
		w.listener.SetListening(false)
		w.capture.Close()
		w.listener = nil
		w.capture = nil
		return
	}

	if w.recognition == nil || w.listener != nil {
		return
	}
	capture, err := mic.Open(audio.InputSampleRate, audio.FrameSize, w.log)
	if err != nil {
		w.log.Warn("wake listening unavailable", "error", err)
		return
	}
	listener := wakeword.NewListener(
		w.phrase,
		w.language,
		w.recognition,
		capture.Frames(),
		w.log,
	)
	listener.SetOnWake(w.onWake)
	w.listener = listener
	w.capture = capture
	listener.SetListening(true)
}

func runListen(cmd *cobra.Command, args []string) {
	mainLogger, talkLogger, hearLogger, dataLogger := createLoggers()
	ctx := context.Background()

	st, err := openStore(ctx, dataLogger)
	if err != nil {
		mainLogger.Fatal("open store", "error", err.Error())
	}
	defer st.Close(ctx)

	profile, err := st.Profile(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoProfile) {
			mainLogger.Fatal("no profile found, run `aura setup` first")
		}
		mainLogger.Fatal("load profile", "error", err.Error())
	}

	geminiAPIKey := viper.GetString("gemini_api_key")
	if geminiAPIKey == "" {
		mainLogger.Fatal("missing GEMINI_API_KEY or --gemini-api-key=")
	}

	speech, err := gemini.NewSpeech(ctx, geminiAPIKey)
	if err != nil {
		mainLogger.Warn("greeting synthesis unavailable", "error", err)
		speech = nil
	}

	wake := &ambientWake{
		phrase:   profile.AssistantName,
		language: viper.GetString("language"),
		log:      hearLogger,
	}
	if key := viper.GetString("speechmatics_api_key"); key != "" {
		wake.recognition = stt.NewRealtimeRecognition(key, hearLogger)
	} else {
		mainLogger.Warn(
			"missing SPEECHMATICS_API_KEY, wake word disabled, press s to start",
		)
	}

	ctrl := session.NewController(
		session.Config{APIKey: geminiAPIKey},
		session.Collaborators{
			Store: st,
			OpenMic: func() (session.Capture, error) {
				return mic.Open(audio.InputSampleRate, audio.FrameSize, hearLogger)
			},
			OpenDevice: func() (playback.Device, error) {
				return playback.OpenOtoDevice(audio.OutputSampleRate)
			},
			Connect: func(ctx context.Context, cfg gemini.LiveConfig, callbacks gemini.Callbacks, lg *log.Logger) (session.LiveStream, error) {
				return gemini.Connect(ctx, cfg, callbacks, lg)
			},
			Speech:   speechOrNil(speech),
			Personas: voice.NewClassifier(audio.InputSampleRate, hearLogger),
			Wake:     wake,
		},
		talkLogger,
	)
	wake.onWake = ctrl.HandleWake
	wake.SetListening(true)
	defer wake.SetListening(false)

	if withWeb, _ := cmd.Flags().GetBool("web"); withWeb {
		handler := web.NewHandler(ctrl, st, mainLogger)
		addr := fmt.Sprintf(":%d", viper.GetInt("web_port"))
		go func() {
			mainLogger.Info("web server listening", "addr", addr)
			if err := http.ListenAndServe(addr, handler.Router()); err != nil {
				mainLogger.Error("web server", "error", err.Error())
			}
		}()
	}

	if err := ui.Run(ctrl, profile.AssistantName); err != nil {
		mainLogger.Fatal("run ui", "error", err.Error())
	}
}

// speechOrNil keeps a nil *gemini.Speech from becoming a non-nil
// Synthesizer interface.
func speechOrNil(s *gemini.Speech) session.Synthesizer {
	if s == nil {
		return nil
	}
	return s
}

func runHistory(cmd *cobra.Command, args []string) {
	mainLogger, _, _, dataLogger := createLoggers()
	ctx := context.Background()

	st, err := openStore(ctx, dataLogger)
	if err != nil {
		mainLogger.Fatal("open store", "error", err.Error())
	}
	defer st.Close(ctx)

	entries, err := st.History(ctx)
	if err != nil {
		mainLogger.Fatal("fetch history", "error", err.Error())
	}
	if len(entries) == 0 {
		fmt.Println("No conversations yet.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"When", "You", "Assistant"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	for _, entry := range entries {
		table.Append([]string{
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.User,
			entry.Assistant,
		})
	}

	table.Render()
}

func runSay(cmd *cobra.Command, args []string) {
	mainLogger, talkLogger, _, dataLogger := createLoggers()
	ctx := context.Background()

	geminiAPIKey := viper.GetString("gemini_api_key")
	if geminiAPIKey == "" {
		mainLogger.Fatal("missing GEMINI_API_KEY or --gemini-api-key=")
	}

	speech, err := gemini.NewSpeech(ctx, geminiAPIKey)
	if err != nil {
		mainLogger.Fatal("create speech client", "error", err.Error())
	}

	persona := voice.DefaultPersona
	if st, err := openStore(ctx, dataLogger); err == nil {
		if pref, err := st.VoicePreference(ctx); err == nil {
			switch pref {
			case voice.PreferenceMale:
				persona = voice.PersonaCharon
			case voice.PreferenceFemale:
				persona = voice.PersonaZephyr
			}
		}
		st.Close(ctx)
	}

	chunk, err := speech.Synthesize(ctx, strings.Join(args, " "), persona)
	if err != nil {
		mainLogger.Fatal("synthesize speech", "error", err.Error())
	}

	dev, err := playback.OpenOtoDevice(audio.OutputSampleRate)
	if err != nil {
		mainLogger.Fatal("open audio output", "error", err.Error())
	}
	defer dev.Close()

	sched := playback.NewScheduler(dev, talkLogger)
	if _, err := sched.Schedule(chunk); err != nil {
		mainLogger.Fatal("schedule playback", "error", err.Error())
	}
	time.Sleep(chunk.Duration() + 200*time.Millisecond)
}

func runServe(cmd *cobra.Command, args []string) {
	mainLogger, talkLogger, _, dataLogger := createLoggers()
	ctx := context.Background()

	st, err := openStore(ctx, dataLogger)
	if err != nil {
		mainLogger.Fatal("open store", "error", err.Error())
	}
	defer st.Close(ctx)

	// The serve command has no audio pipeline; the controller stays
	// idle and the handler reads state and history from it.
	ctrl := session.NewController(
		session.Config{},
		session.Collaborators{Store: st},
		talkLogger,
	)
	handler := web.NewHandler(ctrl, st, mainLogger)

	addr := fmt.Sprintf(":%d", viper.GetInt("web_port"))
	mainLogger.Info("web server listening", "addr", addr)
	if err := http.ListenAndServe(addr, handler.Router()); err != nil {
		mainLogger.Fatal("web server", "error", err.Error())
	}
}

func createLoggers() (mainLogger, talkLogger, hearLogger, dataLogger *log.Logger) {
	logLevel := log.InfoLevel
	if viper.GetBool("debug") {
		logLevel = log.DebugLevel
	}

	logger.SetLevel(logLevel)
	logger.SetReportCaller(true)
	logger.SetCallerFormatter(
		func(file string, line int, funcName string) string {
			path, err := filepath.Rel(".", file)
			if err != nil {
				path = file
			}
			return fmt.Sprintf("%s:%d", path, line)
		},
	)

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.MarginTop(1).
		Bold(false).Transform(func(s string) string {
		return strings.TrimSuffix(s, ":")
	})
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Message = styles.Message.Bold(true).Width(24)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))

	logger.SetStyles(styles)

	mainLogger = logger.With().WithPrefix("main")
	talkLogger = logger.With().WithPrefix("talk")
	hearLogger = logger.With().WithPrefix("hear")
	dataLogger = logger.With().WithPrefix("data")

	return
}
