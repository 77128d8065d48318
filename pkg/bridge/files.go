package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ZentaChain/zentalk-messenger/pkg/messenger"
	"github.com/ZentaChain/zentalk-messenger/pkg/protocol"
	"github.com/ZentaChain/zentalk-messenger/pkg/storage"
)

type outgoingFile struct {
	file    *os.File
	chatID  string
	address string
}

type incomingFile struct {
	file    *os.File
	address string
}

// incomingPath names received files with a local id so nothing a peer sends
// can steer the path outside filesDir
func (b *Bridge) incomingPath(name string) string {
	base := filepath.Base(name)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		base = "file"
	}
	return filepath.Join(b.filesDir, protocol.NewID()+"-"+base)
}

func (b *Bridge) startIncoming(e *protocol.FileStart) error {
	if e.FileID == "" {
		return fmt.Errorf("%w: empty file id from %s", ErrUnknownFile, e.Address)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	_, err := b.db.GetFile(e.FileID)
	if err == nil {
		log.Warnf("⚠️  file %s from %s already known, ignoring", e.FileID, e.Address)
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	path := b.incomingPath(e.FileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	transfer := &storage.FileTransfer{
		FileID:    e.FileID,
		ChatID:    e.ChatID,
		Address:   e.Address,
		FileName:  e.FileName,
		FileSize:  int64(e.FileSize),
		Path:      path,
		Status:    storage.FileStatusTransferring,
		Timestamp: e.Timestamp,
	}
	if e.FileSize == 0 {
		transfer.Status = storage.FileStatusComplete
	}

	if err := b.db.SaveFile(transfer); err != nil {
		f.Close()
		return err
	}

	if e.FileSize == 0 {
		return f.Close()
	}

	b.incoming[e.FileID] = &incomingFile{file: f, address: e.Address}
	log.Infof("📥 receiving %s (%d bytes) from %s", e.FileName, e.FileSize, e.Address)
	return nil
}

// ReceiveFileChunk appends a chunk to the incoming file. Only the contact
// that started the transfer may extend it.
func (b *Bridge) ReceiveFileChunk(address, fileID string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	in, ok := b.incoming[fileID]
	if !ok {
		log.Warnf("⚠️  chunk for unknown file %s from %s", fileID, address)
		return
	}
	if in.address != address {
		log.Warnf("⚠️  chunk of %s from %s dropped, transfer belongs to %s", fileID, address, in.address)
		return
	}

	if _, err := in.file.Write(data); err != nil {
		log.Errorf("❌ failed to write chunk of %s: %v", fileID, err)
		b.failIncoming(fileID, in.file)
		return
	}

	if err := b.db.AdvanceFile(fileID, int64(len(data))); err != nil {
		log.Errorf("❌ failed to record chunk of %s: %v", fileID, err)
		return
	}

	transfer, err := b.db.GetFile(fileID)
	if err != nil {
		log.Errorf("❌ failed to load file %s: %v", fileID, err)
		return
	}

	if transfer.Status == storage.FileStatusComplete {
		in.file.Close()
		delete(b.incoming, fileID)
		log.Infof("✅ file %s received (%d bytes)", transfer.FileName, transfer.Transferred)
	}

	b.publish(&protocol.FileChunk{Address: address, ChatID: transfer.ChatID, FileID: fileID})
}

// failIncoming must be called with b.mu held
func (b *Bridge) failIncoming(fileID string, f *os.File) {
	f.Close()
	delete(b.incoming, fileID)
	if err := b.db.SetFileStatus(fileID, storage.FileStatusFailed); err != nil {
		log.Errorf("❌ failed to mark %s failed: %v", fileID, err)
	}
}

// SendFile announces the file at path to address and starts the chunk pump.
// It returns once the peer acknowledged the FileStart.
func (b *Bridge) SendFile(ctx context.Context, address, chatID, path string) (*protocol.FileStart, error) {
	sender, err := b.attached()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	start := &protocol.FileStart{
		ID:        protocol.NewID(),
		ChatID:    chatID,
		Address:   address,
		Timestamp: protocol.NowUnixMilli(),
		FileID:    protocol.NewID(),
		FileName:  filepath.Base(path),
		FileSize:  uint64(st.Size()),
	}

	err = b.db.SaveFile(&storage.FileTransfer{
		FileID:     start.FileID,
		ChatID:     chatID,
		Address:    address,
		FileName:   start.FileName,
		FileSize:   st.Size(),
		Path:       path,
		IsOutgoing: true,
		Status:     storage.FileStatusTransferring,
		Timestamp:  start.Timestamp,
	})
	if err != nil {
		f.Close()
		return nil, err
	}

	// registered before sending: the first chunk is requested before Send returns
	b.mu.Lock()
	b.outgoing[start.FileID] = &outgoingFile{file: f, chatID: chatID, address: address}
	b.mu.Unlock()

	if err := sender.Send(ctx, messenger.SendFileStart(*start)); err != nil {
		b.finishOutgoing(start.FileID, storage.FileStatusFailed)
		return start, err
	}

	log.Infof("📤 sending %s (%d bytes) to %s", start.FileName, start.FileSize, address)
	return start, nil
}

// RequestFileChunk reads the next chunk of an outgoing file and sends it
func (b *Bridge) RequestFileChunk(address, fileID string, chunkSize int) {
	b.mu.Lock()
	of, ok := b.outgoing[fileID]
	sender := b.sender
	b.mu.Unlock()

	if !ok || sender == nil {
		log.Warnf("⚠️  chunk requested for unknown file %s", fileID)
		return
	}

	buf := make([]byte, chunkSize)
	n, err := io.ReadFull(of.file, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		log.Errorf("❌ failed to read %s: %v", fileID, err)
		b.finishOutgoing(fileID, storage.FileStatusFailed)
		return
	}

	if n == 0 {
		b.finishOutgoing(fileID, storage.FileStatusComplete)
		log.Infof("✅ file %s sent to %s", fileID, address)
		return
	}

	// advance first: the next chunk is requested as soon as this one is acknowledged
	if err := b.db.AdvanceFile(fileID, int64(n)); err != nil {
		log.Errorf("❌ failed to record progress of %s: %v", fileID, err)
	}

	chunk := protocol.FileChunk{
		ID:      protocol.NewID(),
		ChatID:  of.chatID,
		Address: address,
		FileID:  fileID,
		Data:    buf[:n],
	}
	if err := sender.Send(b.ctx, messenger.SendFileChunk(chunk)); err != nil {
		log.Errorf("❌ failed to send chunk of %s: %v", fileID, err)
		b.finishOutgoing(fileID, storage.FileStatusFailed)
	}
}

func (b *Bridge) finishOutgoing(fileID string, status storage.FileStatus) {
	b.mu.Lock()
	of, ok := b.outgoing[fileID]
	delete(b.outgoing, fileID)
	b.mu.Unlock()

	if ok {
		of.file.Close()
	}
	if err := b.db.SetFileStatus(fileID, status); err != nil {
		log.Errorf("❌ failed to set status of %s: %v", fileID, err)
	}
}

// File returns a known transfer
func (b *Bridge) File(fileID string) (*storage.FileTransfer, error) {
	transfer, err := b.db.GetFile(fileID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnknownFile
	}
	return transfer, err
}
