// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	xglog "github.com/ManuGH/nlbridge/internal/log"
	"github.com/rs/zerolog"
)

// logView is the visible log: drained applet lines go to the daemon log.
type logView struct {
	logger zerolog.Logger
}

func newLogView() *logView {
	return &logView{logger: xglog.WithComponent("applet_log")}
}

func (v *logView) AppendLine(line string) {
	v.logger.Info().Str(xglog.FieldEvent, "applet.log_line").Msg(line)
}
