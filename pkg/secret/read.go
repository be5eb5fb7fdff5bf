// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keywrap.
//
// go-keywrap is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package secret

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

// ReadLine reads one line from r into a locked buffer. Surrounding
// whitespace is trimmed and the heap staging copy is zeroed. An empty line
// is an ErrInvalidArgument error.
func ReadLine(r io.Reader) (*Buffer, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, types.IO("secret: read", err)
		}
		return nil, types.InvalidArgument("secret: input is empty")
	}
	data := scanner.Bytes()
	defer Zero(data)

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, types.InvalidArgument("secret: input is empty")
	}
	return NewFromBytes(trimmed)
}

// ReadFromPath reads a secret from a file, or the first line of stdin when
// path is "-". File contents are trimmed of surrounding whitespace.
func ReadFromPath(path string) (*Buffer, error) {
	if path == "-" {
		return ReadLine(os.Stdin)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.IO("secret: read "+path, err)
	}
	defer Zero(data)

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, types.InvalidArgumentf("secret: %s is empty", path)
	}
	return NewFromBytes(trimmed)
}
