//go:build gocv

package siftkit

import _ "github.com/menta2k/siftkit/pkg/sift/cvsift"
