package writer

const direntPoolBlockSize = 65535

// DirentPool bump-allocates Dirents in fixed-size blocks so that pointers
// handed out to callers (and stored in path/title-ordered sets) stay valid
// for the pool's entire lifetime; nothing is ever freed or moved.
type DirentPool struct {
	blocks [][]Dirent
}

// New allocates and returns the next Dirent, growing the pool with a fresh
// block when the current one is exhausted.
func (p *DirentPool) New() *Dirent {
	if len(p.blocks) == 0 || len(p.blocks[len(p.blocks)-1]) == cap(p.blocks[len(p.blocks)-1]) {
		p.blocks = append(p.blocks, make([]Dirent, 0, direntPoolBlockSize))
	}
	block := &p.blocks[len(p.blocks)-1]
	*block = (*block)[:len(*block)+1]
	return &(*block)[len(*block)-1]
}

// NewItemDirent allocates a direct (non-redirect) dirent. mimetype is the
// raw mimetype string; it is remapped to its final sorted-list index during
// finalize, once every mimetype in use is known.
func (p *DirentPool) NewItemDirent(ns NS, path, title string, mimetype string) *Dirent {
	d := p.New()
	d.Namespace = ns
	d.Path = path
	if title != path {
		d.title = title
	}
	d.MimeTypeStr = mimetype
	return d
}

// NewRedirectDirent allocates a redirect dirent pointing at (targetNS, targetPath).
func (p *DirentPool) NewRedirectDirent(ns NS, path, title string, targetNS NS, targetPath string) *Dirent {
	d := p.New()
	d.Namespace = ns
	d.Path = path
	if title != path {
		d.title = title
	}
	d.SetRedirectTarget(targetNS, targetPath)
	return d
}
