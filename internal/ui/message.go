package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/stemdeck/internal/mixer"
	"github.com/desertthunder/stemdeck/internal/models"
	"github.com/desertthunder/stemdeck/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgressUpdate MsgKind = iota
	MsgScanDone
	MsgMixerOpened
	MsgTick
	MsgBackendStatus
)

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

type scanResult struct {
	run *models.AnalysisRun
	err error
}

// scanDoneMsg is the constructor for [MsgScanDone]
func scanDoneMsg(run *models.AnalysisRun, err error) Msg {
	return Msg{kind: MsgScanDone, data: scanResult{run, err}}
}

type mixerOpened struct {
	sync *mixer.Synchronizer
	err  error
}

// mixerOpenedMsg is the constructor for [MsgMixerOpened]
func mixerOpenedMsg(sync *mixer.Synchronizer, err error) Msg {
	return Msg{kind: MsgMixerOpened, data: mixerOpened{sync, err}}
}

// tickMsg is the constructor for [MsgTick]. gen identifies the detail session that scheduled it.
func tickMsg(gen int) Msg {
	return Msg{kind: MsgTick, data: gen}
}

// backendStatusMsg is the constructor for [MsgBackendStatus]. A nil err means the backend answered.
func backendStatusMsg(err error) Msg {
	return Msg{kind: MsgBackendStatus, data: err}
}
