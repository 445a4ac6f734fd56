// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"
)

type testLogger struct {
	lines []string
}

func (t *testLogger) Debugf(format string, v ...any)   { t.lines = append(t.lines, "debug") }
func (t *testLogger) Infof(format string, v ...any)    { t.lines = append(t.lines, "info") }
func (t *testLogger) Warningf(format string, v ...any) { t.lines = append(t.lines, "warning") }
func (t *testLogger) IsLogging(level Level) bool       { return true }

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewBasicLogger(Warning, &buf)
	l.Infof("hidden")
	l.Warningf("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output at level Warning: %q", buf.String())
	}

	buf.Reset()
	l.SetLevel(Debug)
	l.Debugf("debugging")
	if !strings.Contains(buf.String(), "debugging") {
		t.Errorf("debug line missing at level Debug: %q", buf.String())
	}
	if !l.IsLogging(Info) {
		t.Errorf("IsLogging(Info) = false at level Debug")
	}
}

func TestRateLimitedLogger(t *testing.T) {
	tl := &testLogger{}
	rl := RateLimitedLogger(tl, time.Hour)
	for i := 0; i < 10; i++ {
		rl.Warningf("unknown trap %d", i)
	}
	if len(tl.lines) != 1 {
		t.Errorf("got %d lines through the rate limiter, want 1", len(tl.lines))
	}
}

func TestSetTarget(t *testing.T) {
	t.Cleanup(func() { SetTarget(os.Stderr) })
	var buf bytes.Buffer
	SetTarget(&buf)
	Infof("to the new target")
	Log().WithField("policy", "p.toml").Infof("with a field")
	out := buf.String()
	if !strings.Contains(out, "to the new target") {
		t.Errorf("output missing plain line: %q", out)
	}
	if !strings.Contains(out, "policy=p.toml") || !strings.Contains(out, "with a field") {
		t.Errorf("output missing structured line: %q", out)
	}
}
