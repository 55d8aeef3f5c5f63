// Package app is Echo's root application object: it owns RawBus,
// NarrationBus and ResponseBus, the four orchestrators that sit on them
// (Summarizer, AlertManager, SpeakerEngine, VoiceEngine) and the two
// ingress producers, wiring the AlertActivator/Narrator interfaces between
// them so pkg/alert, pkg/speaker and pkg/voice never import one another
// directly. Mirrors the teacher's single-function main() wiring, promoted
// to a reusable struct because Echo's object graph is deeper than one
// provider triple.
package app

import (
	"context"

	"github.com/gen2brain/malgo"

	"github.com/echo-dev/echo/internal/config"
	"github.com/echo-dev/echo/internal/httpapi"
	"github.com/echo-dev/echo/internal/ingress"
	"github.com/echo-dev/echo/internal/logging"
	"github.com/echo-dev/echo/pkg/alert"
	"github.com/echo-dev/echo/pkg/bus"
	"github.com/echo-dev/echo/pkg/events"
	"github.com/echo-dev/echo/pkg/speaker"
	"github.com/echo-dev/echo/pkg/summarizer"
	"github.com/echo-dev/echo/pkg/voice"
)

// App owns Echo's full object graph: three buses, the producers that feed
// RawBus, and the four orchestrators that consume it.
type App struct {
	cfg    config.Config
	logger logging.Logger

	RawBus       *bus.Bus[events.RawEvent]
	NarrationBus *bus.Bus[events.Narration]
	ResponseBus  *bus.Bus[events.Response]

	Hook       *ingress.HookIngress
	Transcript *ingress.TranscriptWatcher

	Summarizer *summarizer.Summarizer
	Alerts     *alert.Manager
	Speaker    *speaker.Engine
	Voice      *voice.Engine

	HTTP *httpapi.Server

	mctx *malgo.AllocatedContext
}

// New builds the full object graph from cfg, but does not start anything or
// touch hardware (see AttachAudioDevices and Start).
func New(cfg config.Config, logger logging.Logger) *App {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	rawBus := bus.New[events.RawEvent](logger)
	narrationBus := bus.New[events.Narration](logger)
	responseBus := bus.New[events.Response](logger)

	hook := ingress.NewHookIngress(rawBus, logger)
	transcript := ingress.NewTranscriptWatcher(rawBus, 0, logger)

	llm := summarizer.NewLLMClient(cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMTimeout)
	summ := summarizer.New(rawBus, narrationBus, llm, logger)

	alerts := alert.New(rawBus, cfg.AlertRepeatInterval, cfg.AlertMaxRepeats, logger)

	var tts speaker.TTSProvider
	if cfg.TTSProvider == "lokutor" {
		tts = speaker.NewLokutorTTS(cfg.LokutorAPIKey, cfg.LokutorHost, cfg.LokutorVoice, cfg.LokutorLang)
	} else {
		tts = speaker.NewTTSClient(cfg.TTSBaseURL, cfg.TTSAPIKey, cfg.TTSVoiceID, cfg.TTSModel, cfg.TTSTimeout)
	}
	player := speaker.NewPlayer(cfg.AudioSampleRate, cfg.BacklogThreshold, logger)
	publisher := speaker.NewRemotePublisher(cfg.RemoteRoomURL, cfg.RemoteAPIKey, cfg.RemoteAPISecret)
	speakerEngine := speaker.New(narrationBus, tts, player, publisher, alerts, logger)
	alerts.SetRepeatCallback(speakerEngine.RepeatCallback)

	mic := voice.NewMicrophone(cfg.AudioSampleRate)
	stt := voice.NewSTTClient(cfg.STTBaseURL, cfg.STTAPIKey, cfg.STTModel, cfg.AudioSampleRate, cfg.STTTimeout)
	dispatcher := voice.NewDispatcher(cfg.DispatchMethod)
	voiceCfg := voice.Config{
		ListenTimeout:       cfg.ListenTimeout,
		SilenceThreshold:    cfg.SilenceThreshold,
		SilenceDuration:     cfg.SilenceDuration,
		MaxRecordDuration:   cfg.MaxRecordDuration,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		SampleRate:          cfg.AudioSampleRate,
	}
	voiceEngine := voice.New(rawBus, responseBus, mic, stt, dispatcher, speakerEngine, voiceCfg, logger)

	httpServer := httpapi.New(rawBus, narrationBus, responseBus, hook, voiceEngine, speakerEngine, alerts, logger)

	return &App{
		cfg:          cfg,
		logger:       logger,
		RawBus:       rawBus,
		NarrationBus: narrationBus,
		ResponseBus:  responseBus,
		Hook:         hook,
		Transcript:   transcript,
		Summarizer:   summ,
		Alerts:       alerts,
		Speaker:      speakerEngine,
		Voice:        voiceEngine,
		HTTP:         httpServer,
	}
}

// AttachAudioDevices initializes a shared malgo context and wires the
// Player's playback device and Microphone's capture device to it. Safe to
// call with no audio hardware present: a device init failure is logged and
// that component simply runs in its degraded (Available()==false) mode.
func (a *App) AttachAudioDevices() {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		a.logger.Warn("app: failed to init audio context, audio disabled", "error", err)
		return
	}
	a.mctx = mctx

	if err := a.Speaker.AttachPlayerDevice(mctx); err != nil {
		a.logger.Warn("app: failed to attach playback device", "error", err)
	}
	if err := a.Voice.AttachMicDevice(mctx); err != nil {
		a.logger.Warn("app: failed to attach capture device", "error", err)
	}
}

// Start launches every component in the reverse order of the bus diagram:
// the furthest-downstream consumers first (VoiceEngine, SpeakerEngine,
// AlertManager, Summarizer) and the transcript producer last, so every
// consumer is running before events start to flow.
func (a *App) Start(ctx context.Context) {
	a.Voice.Start(ctx)
	a.Speaker.Start(ctx)
	a.Alerts.Start(ctx)
	a.Summarizer.Start(ctx)
	a.Transcript.Start(ctx)
}

// Stop tears down every component in the exact reverse of Start's order.
func (a *App) Stop() {
	a.Transcript.Stop()
	a.Summarizer.Stop()
	a.Alerts.Stop()
	a.Speaker.Stop()
	a.Voice.Stop()

	if a.mctx != nil {
		a.mctx.Uninit()
	}
}
