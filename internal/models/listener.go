/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import "time"

// SweepResult summarizes one reconciliation pass
type SweepResult struct {
	RanAt         time.Time `json:"ranAt"`
	Expired       int64     `json:"expired"`
	LegacyExpired int64     `json:"legacyExpired"`
	MonthlyGrants int64     `json:"monthlyGrants"`
}

// Changed reports whether the pass modified any account
func (r SweepResult) Changed() bool {
	return r.Expired+r.LegacyExpired+r.MonthlyGrants > 0
}
