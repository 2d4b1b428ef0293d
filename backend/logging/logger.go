// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package logging

import (
	"go.uber.org/zap"
)

// New builds the process logger. Callers own it and should Sync on shutdown.
func New(development bool) (*zap.SugaredLogger, error) {
	var l *zap.Logger
	var err error
	if development {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// Nop is for tests and tools that do not care about output.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
