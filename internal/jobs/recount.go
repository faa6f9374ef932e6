package jobs

import (
	"context"
	"log"
	"time"

	"presenca/server/internal/config"
	"presenca/server/internal/store"
)

// StartRecountJob periodically reconciles each turma's stored alunosCount
// with the actual number of alunos pointing at it. Counts drift when aluno
// writes race or a delete recount fails mid-request.
func StartRecountJob(ctx context.Context, cfg config.Config, st store.Store) {
	if !cfg.RecountJobEnabled {
		return
	}
	interval := cfg.RecountJobInterval
	if interval <= 0 {
		interval = time.Hour
	}
	timeout := cfg.RecountJobTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, timeout)
				fixed, err := RecountOnce(tickCtx, st)
				cancel()
				if err != nil {
					log.Printf("recount job error: %v", err)
					continue
				}
				if fixed > 0 {
					log.Printf("recount job corrected %d turmas", fixed)
				}
			}
		}
	}()
}

// RecountOnce runs a single reconciliation pass and reports how many turmas
// had a stale count.
func RecountOnce(ctx context.Context, st store.Store) (int, error) {
	turmas, err := st.ListDocuments(ctx, store.Turmas)
	if err != nil {
		return 0, err
	}
	fixed := 0
	for _, turma := range turmas {
		alunos, err := st.QueryByEquality(ctx, store.Alunos, "turmaId", turma.ID)
		if err != nil {
			return fixed, err
		}
		stored, _ := turma.Fields["alunosCount"].(float64)
		if int(stored) == len(alunos) {
			continue
		}
		err = st.UpdateDocument(ctx, store.Turmas, turma.ID, map[string]any{"alunosCount": len(alunos)})
		if err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, nil
}
