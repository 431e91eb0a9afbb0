// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package mtree

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// GCConfig configures the background old-part reclaimer: a pluggable
// clock, a grace period, and an optional log callback.
type GCConfig struct {
	// MinAge is how long a retired part must sit with RefCount()==0
	// before it is eligible for physical deletion.
	MinAge time.Duration

	// QuarantineDir, if set, receives a part directory renamed out of
	// the table's storage root instead of being unlinked outright.
	// A part sitting there longer than QuarantineAge is purged by a
	// second pass. Leave unset to delete parts directly.
	QuarantineDir string
	QuarantineAge time.Duration

	Now func() time.Time // defaults to time.Now; injectable for tests

	Logf func(string, ...interface{})
}

func (c *GCConfig) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *GCConfig) logf(f string, args ...interface{}) {
	if c.Logf != nil {
		c.Logf(f, args...)
	}
}

// GC runs one reclamation pass over parts: any retired, unreferenced
// part older than MinAge is moved to quarantine (or deleted directly),
// and forgotten from the all-parts set.
func GC(parts *PartSet, cfg GCConfig) error {
	now := cfg.now()
	for _, p := range parts.All() {
		if !p.Retired() {
			continue
		}
		if p.RefCount() > 0 {
			continue // a reader still holds it; try again next pass
		}
		age := now.Sub(time.Unix(0, p.RemoveTime()))
		if age < cfg.MinAge {
			continue
		}
		if err := reclaimPart(p, cfg); err != nil {
			return err
		}
		parts.forgetAll(p)
	}
	if cfg.QuarantineDir != "" {
		if err := purgeQuarantine(cfg); err != nil {
			return err
		}
	}
	return nil
}

func reclaimPart(p *Part, cfg GCConfig) error {
	if cfg.QuarantineDir == "" {
		cfg.logf("mtree: gc: deleting part %s", p.Name())
		return os.RemoveAll(p.Dir)
	}
	dst := filepath.Join(cfg.QuarantineDir, p.Name()+"."+strconv.FormatInt(cfg.now().UnixNano(), 10))
	if err := os.MkdirAll(cfg.QuarantineDir, 0o755); err != nil {
		return &systemIOErr{"mkdir", err}
	}
	if err := os.Rename(p.Dir, dst); err != nil {
		return &systemIOErr{"rename", err}
	}
	cfg.logf("mtree: gc: quarantined part %s -> %s", p.Name(), dst)
	return nil
}

// purgeQuarantine deletes anything in QuarantineDir older than
// QuarantineAge, the second half of the quarantine-before-delete
// scheme: a part that turns out to still be needed (an operator
// catches a bad merge, a bug is found) can be recovered by hand until
// this pass runs.
func purgeQuarantine(cfg GCConfig) error {
	entries, err := os.ReadDir(cfg.QuarantineDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return &systemIOErr{"readdir", err}
	}
	now := cfg.now()
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < cfg.QuarantineAge {
			continue
		}
		path := filepath.Join(cfg.QuarantineDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			return &systemIOErr{"remove", err}
		}
		cfg.logf("mtree: gc: purged quarantined part %s", path)
	}
	return nil
}
