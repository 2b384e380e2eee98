package zim

import "crypto/md5"

// checkChecksum re-hashes the archive body (everything before checksumPos)
// with MD5 and compares it against the stored 16-byte footer.
func checkChecksum(ar *Archive) (bool, error) {
	if !ar.header.HasChecksum() {
		return false, nil
	}
	body, err := ar.reader.Read(0, Size(ar.header.ChecksumPos))
	if err != nil {
		return false, err
	}
	stored, err := ar.reader.Read(ar.header.ChecksumPos, 16)
	if err != nil {
		return false, err
	}
	sum := md5.Sum(body)
	return sum == [16]byte(stored[:16]), nil
}

func (ar *Archive) validEnd() Offset {
	if ar.header.HasChecksum() {
		return ar.header.ChecksumPos
	}
	return Offset(ar.reader.Size())
}

// checkDirentPtrs verifies every path-pointer table entry points within
// [80, validEnd-11] so a dirent's fixed header always fits before the end
// of the file.
func checkDirentPtrs(ar *Archive) (bool, error) {
	validEnd := ar.validEnd()
	n := ar.EntryCountAll()
	for i := EntryIndex(0); i < n; i++ {
		off, err := ar.pathAccessor.Offset(i)
		if err != nil {
			return false, err
		}
		if off < HeaderSize || off > validEnd-11 {
			return false, nil
		}
	}
	return true, nil
}

// checkDirentOrder verifies the path-pointer table lists dirents in
// strictly increasing (namespace, path) order.
func checkDirentOrder(ar *Archive) (bool, error) {
	n := ar.EntryCountAll()
	var prevNS byte
	var prevPath string
	for i := EntryIndex(0); i < n; i++ {
		d, err := ar.pathAccessor.Dirent(i)
		if err != nil {
			return false, err
		}
		if i > 0 {
			if d.Namespace < prevNS || (d.Namespace == prevNS && d.Path <= prevPath) {
				return false, nil
			}
		}
		prevNS, prevPath = d.Namespace, d.Path
	}
	return true, nil
}

// checkTitleIndex verifies every title-index entry names a valid entry
// index and that the sequence is non-decreasing by (namespace, title).
func checkTitleIndex(ar *Archive) (bool, error) {
	if ar.titleAccessor == nil {
		return true, nil
	}
	n := ar.titleAccessor.DirentCount()
	entryCount := ar.EntryCountAll()
	var prevNS byte
	var prevTitle string
	for i := TitleIndex(0); i < n; i++ {
		idx, err := ar.titleAccessor.DirectIndex(i)
		if err != nil {
			return false, err
		}
		if idx >= entryCount {
			return false, nil
		}
		d, err := ar.pathAccessor.Dirent(idx)
		if err != nil {
			return false, err
		}
		if i > 0 {
			if d.Namespace < prevNS || (d.Namespace == prevNS && d.Title() < prevTitle) {
				return false, nil
			}
		}
		prevNS, prevTitle = d.Namespace, d.Title()
	}
	return true, nil
}

// checkClusterPtrs verifies every cluster offset is >= 80 and leaves room
// for at least one more byte before validEnd.
func checkClusterPtrs(ar *Archive) (bool, error) {
	validEnd := ar.validEnd()
	n := ar.header.ClusterCount
	for i := uint32(0); i < n; i++ {
		off, err := ar.clusterOffsets.ReadUint64(Offset(8) * Offset(i))
		if err != nil {
			return false, err
		}
		if Offset(off) < HeaderSize || Offset(off)+1 > validEnd {
			return false, nil
		}
	}
	return true, nil
}

// checkDirentMimetypes verifies every non-redirect dirent's mimetype index
// is within the bounds of the mimetype list.
func checkDirentMimetypes(ar *Archive) (bool, error) {
	n := ar.EntryCountAll()
	for i := EntryIndex(0); i < n; i++ {
		d, err := ar.pathAccessor.Dirent(i)
		if err != nil {
			return false, err
		}
		if d.IsRedirect() {
			continue
		}
		if !d.IsItem() {
			continue
		}
		if int(d.MimeType) >= len(ar.mimetypes) {
			return false, nil
		}
	}
	return true, nil
}
