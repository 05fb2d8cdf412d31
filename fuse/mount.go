package fuse

import (
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/deskfs/deskfs/config"
	"github.com/deskfs/deskfs/filesystem"
	"github.com/deskfs/deskfs/internal/util"
)

// Mount serves the tree at mountPoint until Unmount.
type Mount struct {
	raw    *Raw
	server *fuse.Server
}

// Serve mounts and starts serving. It returns once the mount is visible.
func Serve(fs *filesystem.FileSystem, cfg *config.Config, mountPoint string) (*Mount, error) {
	raw := NewRaw(fs)
	opts := cfg.MountOptions
	srv, err := fuse.NewServer(raw, mountPoint, &fuse.MountOptions{
		Name:   opts.Name,
		FsName: opts.FsName,
		Debug:  opts.Debug,
		Logger: util.NewLogLogger("fuse-server", util.TraceLevel),
	})
	if err != nil {
		return nil, err
	}

	go srv.Serve()
	if err := srv.WaitMount(); err != nil {
		return nil, err
	}
	logger := util.GetLogger("fuse")
	logger.Info().Str("mountPoint", mountPoint).Msg("Filesystem mounted")
	return &Mount{raw: raw, server: srv}, nil
}

// Unmount cleanly unmounts the filesystem.
func (m *Mount) Unmount() error {
	if m.server == nil {
		return nil
	}
	return m.server.Unmount()
}
