// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	log "github.com/sirupsen/logrus"

	"github.com/n7proto/dtnd/cla"
)

// SinkRouting never forwards a bundle to any peer. It is useful for nodes
// which should only ever be a local endpoint, e.g. test fixtures or a
// deliberately isolated collector.
type SinkRouting struct{}

// NewSinkRouting creates a SinkRouting strategy. It needs no Core reference
// since it never inspects bundle or peer state.
func NewSinkRouting() *SinkRouting {
	log.Debug("initialised sink routing")
	return &SinkRouting{}
}

func (_ *SinkRouting) NotifyIncoming(_ BundlePack) {}

func (_ *SinkRouting) DispatchingAllowed(_ BundlePack) bool {
	return true
}

func (_ *SinkRouting) SenderForBundle(_ BundlePack) ([]cla.ConvergenceSender, bool) {
	return nil, false
}

func (_ *SinkRouting) ReportFailure(_ BundlePack, _ cla.ConvergenceSender) {}

func (_ *SinkRouting) ReportPeerAppeared(_ cla.Convergence) {}

func (_ *SinkRouting) ReportPeerDisappeared(_ cla.Convergence) {}

func (_ *SinkRouting) String() string {
	return "sink"
}
