package handlers

import (
	"github.com/webpdtool/engine/internal/app/services/dispatch"
)

// RegisterAll wires every handler kind into registry. sn supplies GetSN's
// serial number, prompt/abort back OPJudge, sfc backs the SFC handler.
// SessionID/ItemName are used only for the SFC audit log binding; they are
// fixed for every SFC point served by this registry.
func RegisterAll(registry *dispatch.Registry, deps Dependencies) {
	registry.Register("PowerSet", NewPowerSetFactory(deps.Instruments))
	registry.Register("PowerRead", NewPowerReadFactory(deps.Instruments))
	registry.Register("ComPort", NewComPortFactory(deps.Instruments))
	registry.Register("ConSole", NewConSoleFactory(deps.Instruments))
	registry.Register("TCPIP", NewTCPIPFactory(deps.Instruments))
	registry.Register("GetSN", NewGetSNFactory(deps.SerialNumberSource))
	registry.Register("OPJudge", NewOPJudgeFactory(deps.Prompt, deps.Abort))
	registry.Register("Wait", NewWaitFactory())
	registry.Register("Relay", NewRelayFactory(deps.Instruments))
	registry.Register("ChassisRotation", NewChassisRotationFactory(deps.Instruments))
	registry.Register("RF_Measurements", NewRFMeasurementsFactory(deps.Instruments))
	registry.Register("L6MPU", NewL6MPUFactory(deps.Instruments))
	registry.Register("Other", NewScriptedOtherFactory())
	if deps.SFCClient != nil {
		registry.Register("SFC", NewSFCFactory(deps.SFCClient, deps.SFCLogger, deps.SessionID, deps.ItemName))
	}
}

// Dependencies bundles everything RegisterAll needs. The application builds
// one Dependencies per session (SessionID set, ItemName left empty), so SFC
// audit log rows are keyed by session only.
type Dependencies struct {
	Instruments        Registry
	SerialNumberSource SerialNumberSource
	Prompt             OperatorPrompt
	Abort              AbortSignal
	SFCClient          SFCClient
	SFCLogger          SFCLogger
	SessionID          string
	ItemName           string
}
