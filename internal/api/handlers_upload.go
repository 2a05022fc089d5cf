// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"syscall"

	xglog "github.com/stationcast/stationcast/internal/log"
	"github.com/stationcast/stationcast/internal/upload"
)

// multipartMemory is the in-memory threshold before form parts spill to
// temp files.
const multipartMemory = 4 << 20

type initResponse struct {
	Success  bool   `json:"success"`
	UploadID string `json:"upload_id"`
}

type chunkResponse struct {
	Success        bool `json:"success"`
	ChunkIndex     int  `json:"chunk_index"`
	ChunksReceived int  `json:"chunks_received"`
	TotalChunks    int  `json:"total_chunks"`
}

type finalizeResponse struct {
	Success       bool   `json:"success"`
	VideoID       int64  `json:"video_id"`
	Filename      string `json:"filename"`
	CoinsDeducted int64  `json:"coins_deducted"`
	NewBalance    int64  `json:"new_balance"`
}

type ackResponse struct {
	Success bool `json:"success"`
}

type statusResponse struct {
	Success        bool   `json:"success"`
	UploadID       string `json:"upload_id"`
	Filename       string `json:"filename"`
	ChunksReceived int    `json:"chunks_received"`
	TotalChunks    int    `json:"total_chunks"`
	MissingChunks  []int  `json:"missing_chunks,omitempty"`
	DeclaredSize   int64  `json:"declared_size"`
}

// handleUpload dispatches the form-encoded upload protocol: one action per
// call, errors in-band.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxChunkBytes+multipartMemory)

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(multipartMemory)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		respondErr(w, mapTransportError(err))
		return
	}

	action := r.FormValue("action")
	ctx := r.Context()
	if id := r.FormValue("upload_id"); id != "" {
		ctx = xglog.ContextWithUploadID(ctx, id)
		r = r.WithContext(ctx)
	}

	switch action {
	case "init":
		s.handleInit(w, r)
	case "upload_chunk":
		s.handleChunk(w, r)
	case "finalize":
		s.handleFinalize(w, r)
	case "cancel":
		s.handleCancel(w, r)
	case "status":
		s.handleStatus(w, r)
	default:
		respondErr(w, fmt.Errorf("unknown action: %q", action))
	}
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	stationID, err := strconv.ParseInt(r.FormValue("station_id"), 10, 64)
	if err != nil {
		respondErr(w, errors.New("station_id is required"))
		return
	}

	// filesize and priority fall through to the manager's validation and
	// normalisation rules when unparsable.
	filesize, _ := strconv.ParseInt(r.FormValue("filesize"), 10, 64)
	priority, _ := strconv.Atoi(r.FormValue("priority"))

	id, err := s.manager.Init(r.Context(), upload.InitRequest{
		StationID:   stationID,
		Filename:    r.FormValue("filename"),
		Size:        filesize,
		Title:       r.FormValue("title"),
		ContentType: r.FormValue("content_type"),
		Priority:    priority,
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, initResponse{Success: true, UploadID: id})
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	uploadID := r.FormValue("upload_id")

	chunkIndex, err := strconv.Atoi(r.FormValue("chunk_index"))
	if err != nil {
		respondErr(w, upload.ErrInvalidChunkIndex)
		return
	}
	totalChunks, err := strconv.Atoi(r.FormValue("total_chunks"))
	if err != nil {
		respondErr(w, upload.ErrInvalidTotalChunks)
		return
	}

	file, _, err := r.FormFile("chunk")
	if err != nil {
		respondErr(w, mapTransportError(err))
		return
	}
	defer func() { _ = file.Close() }()

	progress, err := s.manager.ReceiveChunk(r.Context(), uploadID, chunkIndex, totalChunks, file)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, chunkResponse{
		Success:        true,
		ChunkIndex:     progress.ChunkIndex,
		ChunksReceived: progress.ChunksReceived,
		TotalChunks:    progress.TotalChunks,
	})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	result, err := s.manager.Finalize(r.Context(), r.FormValue("upload_id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, finalizeResponse{
		Success:       true,
		VideoID:       result.VideoID,
		Filename:      result.Filename,
		CoinsDeducted: result.CoinsDeducted,
		NewBalance:    result.NewBalance,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Cancel(r.Context(), r.FormValue("upload_id")); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, ackResponse{Success: true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.manager.Status(r.Context(), r.FormValue("upload_id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, statusResponse{
		Success:        true,
		UploadID:       status.UploadID,
		Filename:       status.Filename,
		ChunksReceived: status.ChunksReceived,
		TotalChunks:    status.TotalChunks,
		MissingChunks:  status.MissingChunks,
		DeclaredSize:   status.DeclaredSize,
	})
}

// mapTransportError translates request-body and multipart failures into the
// upload error taxonomy: size limit exceeded, partial transfer, no temp
// space, or a generic upload failure.
func mapTransportError(err error) error {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr), errors.Is(err, multipart.ErrMessageTooLarge):
		return upload.ErrChunkTooLarge
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return errors.New("partial transfer, please retry the chunk")
	case errors.Is(err, syscall.ENOSPC):
		return upload.ErrNoSpace
	case errors.Is(err, http.ErrMissingFile):
		return errors.New("chunk payload is required")
	default:
		return fmt.Errorf("upload failed: %v", err)
	}
}
