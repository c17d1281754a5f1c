// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/n7proto/dtnd/cla"
)

// StaticConfig parametrizes StaticRouting.
type StaticConfig struct {
	// TablePath is a text file with one "destination_node peer_node[,peer_node...]"
	// entry per line. Blank lines and lines starting with '#' are ignored.
	TablePath string
}

// StaticRouting consults a deterministic table mapping a bundle's
// destination node name to one or more peer node names. The table is
// loaded once at startup and hot-reloaded whenever the backing file
// changes on disk.
type StaticRouting struct {
	c *Core

	mu    sync.RWMutex
	table map[string][]string

	watcher *fsnotify.Watcher
}

// NewStaticRouting creates a StaticRouting strategy, loading conf.TablePath
// and starting a filesystem watch for subsequent edits.
func NewStaticRouting(c *Core, conf StaticConfig) (*StaticRouting, error) {
	sr := &StaticRouting{
		c:     c,
		table: make(map[string][]string),
	}

	if conf.TablePath == "" {
		return nil, fmt.Errorf("static routing requires a non-empty TablePath")
	}

	if err := sr.reload(conf.TablePath); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("static routing table watcher failed: %v", err)
	}
	if err := watcher.Add(conf.TablePath); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching static routing table failed: %v", err)
	}
	sr.watcher = watcher

	go sr.watchLoop(conf.TablePath)

	log.WithField("table", conf.TablePath).Debug("initialised static routing")

	return sr, nil
}

func (sr *StaticRouting) watchLoop(path string) {
	for {
		select {
		case event, ok := <-sr.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if err := sr.reload(path); err != nil {
				log.WithError(err).Warn("failed to reload static routing table")
			} else {
				log.WithField("table", path).Info("static routing table reloaded")
			}

		case err, ok := <-sr.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("static routing table watcher error")
		}
	}
}

func (sr *StaticRouting) reload(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	table := make(map[string][]string)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return fmt.Errorf("malformed static routing table line: %q", line)
		}

		dest := fields[0]
		peers := strings.Split(fields[1], ",")
		table[dest] = peers
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	sr.mu.Lock()
	sr.table = table
	sr.mu.Unlock()

	return nil
}

func (sr *StaticRouting) NotifyIncoming(_ BundlePack) {}

func (sr *StaticRouting) DispatchingAllowed(_ BundlePack) bool {
	return true
}

func (sr *StaticRouting) SenderForBundle(bp BundlePack) (css []cla.ConvergenceSender, del bool) {
	dest := nodeName(bp.MustBundle().PrimaryBlock.Destination)

	sr.mu.RLock()
	peers := sr.table[dest]
	sr.mu.RUnlock()

	if len(peers) == 0 {
		return nil, false
	}

	for _, cs := range sr.c.claManager.Sender() {
		peerName := nodeName(cs.GetPeerEndpointID())
		for _, want := range peers {
			if peerName == want {
				css = append(css, cs)
				break
			}
		}
	}

	log.WithFields(log.Fields{
		"bundle":      bp.ID(),
		"destination": dest,
		"table_peers": peers,
		"resolved":    len(css),
	}).Debug("static routing resolved senders")

	return css, true
}

func (sr *StaticRouting) ReportFailure(_ BundlePack, _ cla.ConvergenceSender) {}

func (sr *StaticRouting) ReportPeerAppeared(_ cla.Convergence) {}

func (sr *StaticRouting) ReportPeerDisappeared(_ cla.Convergence) {}

func (_ *StaticRouting) String() string {
	return "static"
}
