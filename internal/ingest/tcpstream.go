package ingest

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	"neurogut/internal/config"
	"neurogut/internal/model"
)

// StartTCPStream accepts newline-delimited JSON recordings.
func StartTCPStream(ctx context.Context, cfg *config.Manager, out chan<- model.Recording, logger *slog.Logger) {
	current := cfg.Get().Ingest.TCPStream
	if !current.Enabled {
		if logger != nil {
			logger.Info("tcp stream ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("tcp stream ingest enabled", "addr", current.Addr)
	}
	ln, err := net.Listen("tcp", current.Addr)
	if err != nil {
		if logger != nil {
			logger.Error("tcp stream listen error", "err", err)
		}
		return
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				if logger != nil {
					logger.Warn("tcp stream accept error", "err", err)
				}
				continue
			}
			go handleTCPStreamConn(ctx, conn, int(cfg.Get().Ingest.MaxBodyBytes), out, logger)
		}
	}()
}

func handleTCPStreamConn(ctx context.Context, conn net.Conn, maxLine int, out chan<- model.Recording, logger *slog.Logger) {
	defer conn.Close()
	n := ReadStream(ctx, conn, maxLine, out, logger)
	if logger != nil {
		logger.Debug("tcp stream closed", "remote", conn.RemoteAddr().String(), "recordings", n)
	}
}

// ReadStream queues every decodable line of r and returns how many were
// queued.
func ReadStream(ctx context.Context, r io.Reader, maxLine int, out chan<- model.Recording, logger *slog.Logger) int {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), max(maxLine, 64*1024))
	queued := 0
	for scanner.Scan() {
		line := bytesTrim(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, err := DecodeRecording(line)
		if err != nil {
			if logger != nil {
				logger.Warn("tcp stream decode error", "err", err)
			}
			continue
		}
		rec.Source = "tcp_stream"
		if SendNonBlocking(ctx, out, rec, logger) {
			queued++
		}
		select {
		case <-ctx.Done():
			return queued
		default:
		}
	}
	if err := scanner.Err(); err != nil && logger != nil {
		logger.Warn("tcp stream scanner error", "err", err)
	}
	return queued
}
