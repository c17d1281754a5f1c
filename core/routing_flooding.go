// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	log "github.com/sirupsen/logrus"

	"github.com/n7proto/dtnd/cla"
)

// FloodingRouting is the simplest useful baseline: every reachable peer
// receives every bundle, with no history and no delete-after-send
// shortcut. Unlike EpidemicRouting it never consults or updates per-bundle
// sent-state, so a peer may legitimately be offered the same bundle more
// than once across retries.
type FloodingRouting struct {
	c *Core
}

// NewFloodingRouting creates a FloodingRouting strategy bound to the Core.
func NewFloodingRouting(c *Core) *FloodingRouting {
	log.Debug("initialised flooding routing")
	return &FloodingRouting{c: c}
}

func (fr *FloodingRouting) NotifyIncoming(_ BundlePack) {}

func (fr *FloodingRouting) DispatchingAllowed(_ BundlePack) bool {
	return true
}

// SenderForBundle emits every currently active ConvergenceSender. The
// pipeline retains the bundle (delete_after_send=false) since flooding
// offers no guarantee any single peer is the final destination.
func (fr *FloodingRouting) SenderForBundle(bp BundlePack) (css []cla.ConvergenceSender, del bool) {
	css = fr.c.claManager.Sender()

	log.WithFields(log.Fields{
		"bundle": bp.ID(),
		"peers":  len(css),
	}).Debug("flooding routing selected every known sender")

	return css, false
}

func (fr *FloodingRouting) ReportFailure(_ BundlePack, _ cla.ConvergenceSender) {}

func (fr *FloodingRouting) ReportPeerAppeared(_ cla.Convergence) {}

func (fr *FloodingRouting) ReportPeerDisappeared(_ cla.Convergence) {}

func (_ *FloodingRouting) String() string {
	return "flooding"
}
