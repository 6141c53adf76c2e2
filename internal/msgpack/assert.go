package msgpack

import "github.com/ocx/meshrpc/internal/archive"

var (
	_ archive.Writer = (*Writer)(nil)
	_ archive.Reader = (*Reader)(nil)
)
