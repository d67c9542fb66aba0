// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package document

import "errors"

// ErrInvalidChunkType is returned for chunk types outside the closed set.
var ErrInvalidChunkType = errors.New("invalid chunk type")
