// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package applet

// Observer globals published by the data-export modules. Names are case-sensitive.
const (
	GlobalModuleAvailable  = "DATA-EXPORT:MODULE-AVAILABLE"
	GlobalDataAvailable    = "DATA-EXPORT:DATA-AVAILABLE?"
	GlobalDataReady        = "DATA-EXPORT:DATA-READY?"
	GlobalModelData        = "DATA-EXPORT:MODEL-DATA"
	GlobalDGDataReady      = "DG-DATA-READY?"
	GlobalDGOutput         = "DG-OUTPUT"
	GlobalDGExported       = "DG-EXPORTED?"
	GlobalLogDataAvailable = "DATA-EXPORT:LOG-DATA-AVAILABLE?"
	GlobalLogDataReady     = "DATA-EXPORT:LOG-DATA-READY?"
	GlobalExportedLogData  = "DATA-EXPORT:EXPORTED-LOG-DATA"
)

// Commands understood by the data-export modules.
const (
	CmdExportData        = "export-data"
	CmdMakeModelData     = "data-export:make-model-data"
	CmdExportLogData     = "data-export:export-log-data"
	CmdClearLogDataReady = "set data-export:log-data-ready? false"
)
