package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/voxkey/voxkey/internal/audio"
	"github.com/voxkey/voxkey/internal/cleanup"
	"github.com/voxkey/voxkey/internal/clipboard"
	"github.com/voxkey/voxkey/internal/config"
	"github.com/voxkey/voxkey/internal/history"
	"github.com/voxkey/voxkey/internal/hotkey"
	"github.com/voxkey/voxkey/internal/logger"
	"github.com/voxkey/voxkey/internal/notification"
	"github.com/voxkey/voxkey/internal/permissions"
	"github.com/voxkey/voxkey/internal/pipeline"
	"github.com/voxkey/voxkey/internal/recognition"
	"github.com/voxkey/voxkey/internal/session"
	"github.com/voxkey/voxkey/internal/sounds"
	"github.com/voxkey/voxkey/internal/tray"
	hk "golang.design/x/hotkey"
)

const version = "1.0.0"

// App holds all application state
type App struct {
	logger     *logger.Logger
	config     *config.Config
	trayMgr    *tray.Manager
	hotkeyMgr  *hotkey.Manager
	capture    *audio.PortAudioCapture
	recognizer *recognition.WhisperRecognizer
	clipboard  *clipboard.Manager
	pipe       *pipeline.Pipeline
	coord      *session.Coordinator
	store      *history.Store
	sounds     *sounds.Player
	notifier   *notification.Manager

	micGranted  bool
	accGranted  bool
	modelLoaded bool
}

func init() {
	// macOSのCGO呼び出しにはメインスレッドが必要
	runtime.LockOSThread()
}

func main() {
	app := &App{}

	loggerConfig := logger.DefaultConfig()
	var err error
	app.logger, err = logger.New(loggerConfig)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer app.logger.Close()

	app.logger.Info("VoxKey v%s starting", version)

	configPath := config.GetConfigPath()
	app.config, err = config.Load(configPath)
	if err != nil {
		app.logger.Error("failed to load config: %v", err)
		log.Fatalf("failed to load config: %v", err)
	}
	if err := app.config.Validate(); err != nil {
		app.logger.Error("invalid config: %v", err)
		log.Fatalf("invalid config: %v", err)
	}
	app.logger.Info("config loaded: %s", configPath)

	app.notifier = notification.NewManager("VoxKey")
	app.sounds = sounds.NewPlayer(soundsConfig(app.config))
	app.clipboard = clipboard.NewManager(clipboardConfig(app.config))

	app.recognizer = recognition.NewWhisperRecognizer(recognition.Config{
		Language: app.config.Language,
	})
	defer app.recognizer.Close()

	historyPath := app.config.HistoryPath
	if historyPath == "" {
		historyPath = history.DefaultPath()
	}
	app.store, err = history.Open(historyPath)
	if err != nil {
		// History is best effort, transcription still works without it
		app.logger.Warn("failed to open history database: %v", err)
		app.store = nil
	}

	app.trayMgr = tray.NewManager(tray.Config{
		OnReady:         app.onReady,
		OnCleanupToggle: app.handleCleanupToggle,
		OnStatistics:    app.statisticsText,
		OnPasteLast:     app.handlePasteLast,
		OnDeviceChange:  app.handleDeviceChange,
		OnQuit:          app.handleQuit,
		Notify: func(title, message string) {
			if err := app.notifier.Notify(title, message); err != nil {
				app.logger.Warn("notification failed: %v", err)
			}
		},
		CleanupEnabled: app.config.CleanupEnabled,
	})

	app.logger.Info("starting systray")

	// systray.Run blocks until quit
	app.trayMgr.Run()
}

// onReady finishes initialization once the systray is up
func (a *App) onReady() {
	a.logger.Info("systray ready, initializing")

	permChecker := permissions.NewChecker()
	a.micGranted = permChecker.MicrophoneAuthorized()
	a.accGranted = permChecker.AccessibilityAuthorized()

	if a.micGranted {
		a.logger.Info("microphone permission: granted")
	} else {
		a.logger.Warn("microphone permission: not granted, recording disabled")
		if permChecker.Microphone() == permissions.StatusNotDetermined {
			permChecker.RequestMicrophone()
		} else {
			a.notifier.MicrophonePermissionDenied()
		}
	}

	if a.accGranted {
		a.logger.Info("accessibility permission: granted")
	} else {
		a.logger.Warn("accessibility permission: not granted, hotkey and paste disabled")
		a.notifier.AccessibilityPermissionDenied()
	}

	a.loadModel()

	if a.micGranted {
		audioConfig := audio.DefaultConfig()
		audioConfig.DeviceID = a.config.AudioDeviceID
		audioConfig.MinDuration = a.config.MinRecord()

		var err error
		a.capture, err = audio.NewPortAudioCapture(audioConfig)
		if err != nil {
			a.logger.Error("failed to initialize audio capture: %v", err)
		} else {
			a.logger.Info("audio capture initialized (device %d)", audioConfig.DeviceID)
			a.refreshDeviceMenu()
		}
	}

	a.pipe = pipeline.New(a.recognizer, a.cleaner(), a.clipboard, a.logger, audio.DefaultConfig().SampleRate)
	a.pipe.SetCleanupEnabled(a.config.CleanupEnabled)

	if a.capture != nil {
		a.coord = session.New(a.capture, a.pipe, a.logger, session.Config{
			Debounce:  a.config.Debounce(),
			Failsafe:  a.config.Failsafe(),
			MaxRecord: a.config.MaxRecord(),
			Notifier:  notifierAdapter{a.notifier},
			OnState:   a.onSessionState,
		})
		go a.observeSessions()
	}

	if a.accGranted && a.coord != nil {
		a.hotkeyMgr = hotkey.New()

		hotkeyConfig := hotkey.Config{
			Modifiers: configToModifiers(a.config.Hotkey),
			Key:       stringToKey(a.config.Hotkey.Key),
			Mode:      recordingMode(a.config.RecordingMode),
		}

		if err := a.hotkeyMgr.Register(hotkeyConfig); err != nil {
			a.logger.Error("failed to register hotkey: %v", err)
			a.notifier.NotifyError(fmt.Sprintf("Failed to register hotkey: %v", err))
		} else {
			formatted := hotkey.FormatHotkey(hotkeyConfig.Modifiers, hotkeyConfig.Key)
			a.logger.Info("hotkey registered: %s", formatted)

			for _, conflict := range hotkey.CheckConflicts(hotkeyConfig.Modifiers, hotkeyConfig.Key) {
				a.logger.Warn("hotkey conflict: %s (%s)", conflict.Name, conflict.Description)
			}

			a.coord.Start(a.hotkeyMgr.Events())
		}
	}

	a.logger.Info("initialization complete")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		a.logger.Info("received termination signal")
		a.handleQuit()
		a.trayMgr.Quit()
	}()

	fmt.Println("\n==========================================================")
	fmt.Printf("VoxKey v%s is running\n", version)
	if a.hotkeyMgr != nil {
		current := a.hotkeyMgr.GetConfig()
		fmt.Printf("Hold %s to dictate\n", hotkey.FormatHotkey(current.Modifiers, current.Key))
	}
	fmt.Println("Quit via Ctrl+C or the menu bar icon")
	fmt.Println("==========================================================")
}

// loadModel resolves and loads the speech model. The model is loaded
// eagerly so the first dictation does not pay the load cost.
func (a *App) loadModel() {
	modelPath := ""

	if a.config.ModelPath != "" {
		if err := a.config.ValidateModelPath(); err != nil {
			a.logger.Warn("configured model path invalid: %v", err)
		} else {
			modelPath, _ = a.config.GetModelPath()
		}
	}

	if modelPath == "" {
		found, err := recognition.FindModel(recognition.DefaultModelName)
		if err != nil {
			a.logger.Warn("no model configured and default not found: %v", err)
			a.notifier.ModelMissing(recognition.DefaultModelDir())
			return
		}
		modelPath = found
	}

	a.logger.Info("loading model: %s", modelPath)
	if err := a.recognizer.LoadModel(modelPath); err != nil {
		a.logger.Error("failed to load model: %v", err)
		a.notifier.NotifyError(fmt.Sprintf("Failed to load speech model: %v", err))
		return
	}

	a.logger.Info("model loaded")
	a.modelLoaded = true
}

// cleaner returns the configured cleanup engine, or nil for local-only
// formatting.
func (a *App) cleaner() pipeline.Cleaner {
	if a.config.CleanupCommand == "" {
		return nil
	}
	return cleanup.NewCommandCleaner(cleanup.CommandConfig{
		Command: a.config.CleanupCommand,
	})
}

// onSessionState mirrors coordinator state to the menu bar and sounds
func (a *App) onSessionState(state session.State) {
	switch state {
	case session.Recording:
		a.trayMgr.SetState(tray.StateRecording)
		a.sounds.PlayStart()
	case session.Processing:
		a.trayMgr.SetState(tray.StateProcessing)
		a.sounds.PlayStop()
	default:
		a.trayMgr.SetState(tray.StateIdle)
	}
}

// observeSessions records resolved sessions to the history database
func (a *App) observeSessions() {
	for ev := range a.coord.Events() {
		a.logger.Debug("session %d resolved: %s", ev.SessionID, ev.Outcome)

		if ev.Outcome != session.OutcomeDelivered || a.store == nil {
			continue
		}

		_, err := a.store.Save(history.Record{
			Text:        ev.Text,
			RawText:     ev.Raw,
			DurationSec: ev.Timings.Audio.Seconds(),
			CleanupUsed: a.pipe.CleanupEnabled(),
		})
		if err != nil {
			a.logger.Warn("failed to save transcription to history: %v", err)
		}
	}
}

// refreshDeviceMenu rebuilds the input device submenu
func (a *App) refreshDeviceMenu() {
	devices, err := a.capture.ListDevices()
	if err != nil {
		a.logger.Warn("failed to list audio devices: %v", err)
		return
	}

	items := make([]tray.Device, 0, len(devices))
	for _, dev := range devices {
		items = append(items, tray.Device{
			ID:        dev.ID,
			Name:      dev.Name,
			IsDefault: dev.IsDefault,
			IsCurrent: dev.ID == a.config.AudioDeviceID ||
				(a.config.AudioDeviceID == -1 && dev.IsDefault),
		})
	}
	a.trayMgr.UpdateDeviceMenu(items)
}

// handleCleanupToggle flips AI formatting on or off and persists the choice
func (a *App) handleCleanupToggle(enabled bool) {
	a.logger.Info("cleanup toggled: %v", enabled)
	a.pipe.SetCleanupEnabled(enabled)
	a.config.SetCleanupEnabled(enabled)
	if err := a.config.Save(config.GetConfigPath()); err != nil {
		a.logger.Warn("failed to save config: %v", err)
	}
}

// handleDeviceChange switches the input device for subsequent recordings
func (a *App) handleDeviceChange(deviceID int) {
	a.logger.Info("input device changed: %d", deviceID)
	if a.capture != nil {
		a.capture.SetDevice(deviceID)
	}
	a.config.SetAudioDeviceID(deviceID)
	if err := a.config.Save(config.GetConfigPath()); err != nil {
		a.logger.Warn("failed to save config: %v", err)
	}
	a.refreshDeviceMenu()
}

// statisticsText formats usage statistics for the menu
func (a *App) statisticsText() string {
	if a.store == nil {
		return "History is unavailable."
	}

	stats, err := a.store.Statistics()
	if err != nil {
		a.logger.Warn("failed to read statistics: %v", err)
		return "Statistics are unavailable."
	}

	return fmt.Sprintf("%d transcriptions, %d words, %.1f minutes dictated (%.0f WPM). Today: %d transcriptions, %d words.",
		stats.TotalTranscriptions, stats.TotalWords, stats.TotalMinutes,
		stats.AvgWPM, stats.TodayCount, stats.TodayWords)
}

// handlePasteLast pastes the most recent transcription from history again
func (a *App) handlePasteLast() {
	if a.store == nil || a.pipe == nil {
		a.notifier.Notify("VoxKey", "History is unavailable.")
		return
	}

	records, err := a.store.Recent(1, 0)
	if err != nil {
		a.logger.Warn("failed to read last transcription: %v", err)
		a.notifier.NotifyError("Could not read the transcription history.")
		return
	}
	if len(records) == 0 {
		a.notifier.Notify("VoxKey", "Nothing to paste yet.")
		return
	}

	if err := a.pipe.Deliver(records[0].Text); err != nil {
		a.logger.Error("failed to paste last transcription: %v", err)
		a.notifier.NotifyError("Could not paste the last transcription.")
	}
}

// handleQuit tears the application down in dependency order
func (a *App) handleQuit() {
	a.logger.Info("shutting down")

	if a.hotkeyMgr != nil {
		a.hotkeyMgr.Close()
	}

	if a.coord != nil {
		a.coord.Stop()
	}

	if a.capture != nil {
		a.capture.Close()
	}

	if a.store != nil {
		a.store.Close()
	}

	a.logger.Info("shutdown complete")
}

// notifierAdapter adapts the notification manager to the coordinator's
// error-reporting interface.
type notifierAdapter struct {
	nm *notification.Manager
}

func (n notifierAdapter) Notify(title, message string) {
	n.nm.Notify(title, message)
}

func (n notifierAdapter) NotifyError(message string) {
	n.nm.NotifyError(message)
}

func soundsConfig(cfg *config.Config) sounds.Config {
	c := sounds.DefaultConfig()
	c.Enabled = cfg.SoundsEnabled
	return c
}

func clipboardConfig(cfg *config.Config) clipboard.Config {
	c := clipboard.DefaultConfig()
	if cfg.PasteSplitSize > 0 {
		c.SplitSize = cfg.PasteSplitSize
	}
	return c
}

func recordingMode(mode string) hotkey.RecordingMode {
	if mode == "toggle" {
		return hotkey.Toggle
	}
	return hotkey.PressToHold
}

// configToModifiers converts the config hotkey to golang.design modifiers
func configToModifiers(hkConfig config.HotkeyConfig) []hk.Modifier {
	var mods []hk.Modifier
	if hkConfig.Ctrl {
		mods = append(mods, hk.ModCtrl)
	}
	if hkConfig.Shift {
		mods = append(mods, hk.ModShift)
	}
	if hkConfig.Alt {
		mods = append(mods, hk.ModOption)
	}
	if hkConfig.Cmd {
		mods = append(mods, hk.ModCmd)
	}
	return mods
}

// stringToKey converts a key name to a key code
func stringToKey(keyStr string) hk.Key {
	keyMap := map[string]hk.Key{
		"Space":  hk.KeySpace,
		"A":      hk.KeyA,
		"B":      hk.KeyB,
		"C":      hk.KeyC,
		"D":      hk.KeyD,
		"E":      hk.KeyE,
		"F":      hk.KeyF,
		"G":      hk.KeyG,
		"H":      hk.KeyH,
		"I":      hk.KeyI,
		"J":      hk.KeyJ,
		"K":      hk.KeyK,
		"L":      hk.KeyL,
		"M":      hk.KeyM,
		"N":      hk.KeyN,
		"O":      hk.KeyO,
		"P":      hk.KeyP,
		"Q":      hk.KeyQ,
		"R":      hk.KeyR,
		"S":      hk.KeyS,
		"T":      hk.KeyT,
		"U":      hk.KeyU,
		"V":      hk.KeyV,
		"W":      hk.KeyW,
		"X":      hk.KeyX,
		"Y":      hk.KeyY,
		"Z":      hk.KeyZ,
		"0":      hk.Key0,
		"1":      hk.Key1,
		"2":      hk.Key2,
		"3":      hk.Key3,
		"4":      hk.Key4,
		"5":      hk.Key5,
		"6":      hk.Key6,
		"7":      hk.Key7,
		"8":      hk.Key8,
		"9":      hk.Key9,
		"Escape": hk.KeyEscape,
		"Return": hk.KeyReturn,
		"Tab":    hk.KeyTab,
	}

	if key, ok := keyMap[keyStr]; ok {
		return key
	}

	return hk.KeySpace
}
