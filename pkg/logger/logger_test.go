/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logger

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Level == "" {
		t.Error("Default config should have a level set")
	}

	if config.Output == "" {
		t.Error("Default config should have an output set")
	}
}

func TestDefaultConfigHonorsDebugEnv(t *testing.T) {
	t.Setenv("DEBUG", "true")

	config := DefaultConfig()
	if !config.Debug {
		t.Error("Default config should honor DEBUG=true")
	}
}

func TestTestLoggerImplementsLogger(t *testing.T) {
	var l Logger = NewTestLogger()

	if l.WithComponent("test").GetLevel() != zerolog.Disabled {
		t.Error("test logger should stay disabled regardless of component scoping")
	}

	l.SetLevel(zerolog.InfoLevel)
	if l.WithComponent("test").GetLevel() != zerolog.InfoLevel {
		t.Error("SetLevel should change the level observed via WithComponent")
	}
}
