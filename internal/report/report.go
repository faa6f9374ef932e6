// Package report builds the attendance matrix and summary figures for a
// turma and applies attendance writes through the document store.
package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"presenca/server/internal/model"
	"presenca/server/internal/store"
)

// ValidationError reports a missing required field before a write.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing_%s", e.Field)
}

// Row is one aluno's line in the attendance matrix: presence per
// recorded date plus the attendance percentage over all records.
type Row struct {
	Aluno      model.Aluno     `json:"aluno"`
	Presencas  map[string]bool `json:"presencas"`
	Percentual float64         `json:"percentual"`
}

// Matrix is the per-turma attendance report. Datas lists the recorded
// dates in ascending order; Rows follow the roster order of the input.
type Matrix struct {
	Datas []string `json:"datas"`
	Rows  []Row    `json:"alunos"`
}

// BuildMatrix crosses the roster with the turma's attendance records.
// Records are sorted ascending by date (stable, ties keep fetch order);
// an aluno missing from a record's entries counts as absent. With zero
// records every percentage is 0. Pure function of its inputs.
func BuildMatrix(alunos []model.Aluno, frequencias []model.Frequencia) Matrix {
	sorted := make([]model.Frequencia, len(frequencias))
	copy(sorted, frequencias)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Data < sorted[j].Data
	})

	datas := make([]string, 0, len(sorted))
	presencasPorData := make([]map[string]bool, 0, len(sorted))
	for _, frequencia := range sorted {
		datas = append(datas, frequencia.Data)
		presencasPorData = append(presencasPorData, frequencia.Presencas())
	}

	total := len(sorted)
	rows := make([]Row, 0, len(alunos))
	for _, aluno := range alunos {
		nome := aluno.NomeCompleto()
		presencas := make(map[string]bool, total)
		presentes := 0
		for i, frequencia := range sorted {
			presente := presencasPorData[i][nome]
			presencas[frequencia.Data] = presente
			if presente {
				presentes++
			}
		}
		percentual := 0.0
		if total > 0 {
			percentual = round2(float64(presentes) / float64(total) * 100)
		}
		rows = append(rows, Row{Aluno: aluno, Presencas: presencas, Percentual: percentual})
	}
	return Matrix{Datas: datas, Rows: rows}
}

// RecordDailyAttendance persists one attendance record for (turma, data).
// Every roster aluno gets an entry; presence defaults to present unless
// toggled off in presencas (keyed by aluno id). An existing record for
// the same turma and date is overwritten rather than duplicated.
func RecordDailyAttendance(ctx context.Context, st store.Store, turmaID, data string, alunos []model.Aluno, presencas map[string]bool) (model.Frequencia, error) {
	if strings.TrimSpace(turmaID) == "" {
		return model.Frequencia{}, &ValidationError{Field: "turma"}
	}
	if strings.TrimSpace(data) == "" {
		return model.Frequencia{}, &ValidationError{Field: "data"}
	}

	entries := make([]model.PresencaAluno, 0, len(alunos))
	for _, aluno := range alunos {
		presente := true
		if value, ok := presencas[aluno.ID]; ok {
			presente = value
		}
		marker := model.Falta
		if presente {
			marker = model.Presente
		}
		entries = append(entries, model.PresencaAluno{Nome: aluno.NomeCompleto(), Presenca: marker})
	}

	frequencia := model.Frequencia{TurmaID: turmaID, Data: data, Alunos: entries}

	existing, err := findFrequencia(ctx, st, turmaID, data)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return model.Frequencia{}, err
	}
	if err == nil {
		if err := st.UpdateDocument(ctx, store.FrequenciaDiaria, existing.ID, map[string]any{"alunos": entriesFields(entries)}); err != nil {
			return model.Frequencia{}, err
		}
		frequencia.ID = existing.ID
		return frequencia, nil
	}

	id, err := st.AddDocument(ctx, store.FrequenciaDiaria, frequencia.Fields())
	if errors.Is(err, store.ErrDuplicate) {
		// Lost the insert race; the record now exists, overwrite it.
		existing, findErr := findFrequencia(ctx, st, turmaID, data)
		if findErr != nil {
			return model.Frequencia{}, findErr
		}
		if err := st.UpdateDocument(ctx, store.FrequenciaDiaria, existing.ID, map[string]any{"alunos": entriesFields(entries)}); err != nil {
			return model.Frequencia{}, err
		}
		frequencia.ID = existing.ID
		return frequencia, nil
	}
	if err != nil {
		return model.Frequencia{}, err
	}
	frequencia.ID = id
	return frequencia, nil
}

// UpdateStudentPresence applies one aluno's edit buffer (date → present)
// across the turma's records. Only records whose date appears in the
// buffer with a changed value are rewritten, one update per record. On
// failure the ids updated so far are returned alongside the error;
// already-applied updates are not rolled back.
func UpdateStudentPresence(ctx context.Context, st store.Store, nomeCompleto string, edicoes map[string]bool, frequencias []model.Frequencia) ([]string, error) {
	if strings.TrimSpace(nomeCompleto) == "" {
		return nil, &ValidationError{Field: "aluno"}
	}

	updated := []string{}
	for _, frequencia := range frequencias {
		desired, ok := edicoes[frequencia.Data]
		if !ok {
			continue
		}
		if frequencia.Presencas()[nomeCompleto] == desired {
			continue
		}
		entries := withPresence(frequencia.Alunos, nomeCompleto, desired)
		if err := st.UpdateDocument(ctx, store.FrequenciaDiaria, frequencia.ID, map[string]any{"alunos": entriesFields(entries)}); err != nil {
			return updated, err
		}
		updated = append(updated, frequencia.ID)
	}
	return updated, nil
}

// Statistics is the home-screen aggregate over every turma and record.
type Statistics struct {
	TotalAlunos              int     `json:"totalAlunos"`
	TotalTurmas              int     `json:"totalTurmas"`
	MediaFrequencia          float64 `json:"mediaFrequencia"`
	AlunosFrequenciaCompleta int     `json:"alunosFrequenciaCompleta"`
	AlunosFrequenciaBaixa    int     `json:"alunosFrequenciaBaixa"`
	TotalDiasLetivos         int     `json:"totalDiasLetivos"`
}

const frequenciaBaixaLimite = 75.0

// ComputeHomeStatistics aggregates across all records. The average uses
// the first record's roster size as the denominator base for every
// record, which skews when roster sizes differ between records; kept
// because historical data was produced under the same assumption.
func ComputeHomeStatistics(alunos []model.Aluno, turmas []model.Turma, frequencias []model.Frequencia) Statistics {
	stats := Statistics{
		TotalAlunos:      len(alunos),
		TotalTurmas:      len(turmas),
		TotalDiasLetivos: len(frequencias),
	}
	if len(frequencias) == 0 {
		return stats
	}

	base := len(frequencias[0].Alunos)
	totalPresencas := 0
	presencasPorNome := map[string]int{}
	faltasPorNome := map[string]int{}
	for _, frequencia := range frequencias {
		for _, entry := range frequencia.Alunos {
			if entry.Presenca == model.Presente {
				totalPresencas++
				presencasPorNome[entry.Nome]++
			} else {
				faltasPorNome[entry.Nome]++
			}
		}
	}

	if base > 0 {
		stats.MediaFrequencia = round2(float64(totalPresencas) / float64(base*len(frequencias)) * 100)
	}

	for _, presencas := range presencasPorNome {
		if presencas == len(frequencias) {
			stats.AlunosFrequenciaCompleta++
		}
	}
	for _, faltas := range faltasPorNome {
		percentual := float64(len(frequencias)-faltas) / float64(len(frequencias)) * 100
		if percentual < frequenciaBaixaLimite {
			stats.AlunosFrequenciaBaixa++
		}
	}
	return stats
}

// Helpers

func findFrequencia(ctx context.Context, st store.Store, turmaID, data string) (model.Frequencia, error) {
	docs, err := st.QueryByEquality(ctx, store.FrequenciaDiaria, "turmaId", turmaID)
	if err != nil {
		return model.Frequencia{}, err
	}
	for _, doc := range docs {
		frequencia, err := model.FrequenciaFromDocument(doc)
		if err != nil {
			return model.Frequencia{}, err
		}
		if frequencia.Data == data {
			return frequencia, nil
		}
	}
	return model.Frequencia{}, store.ErrNotFound
}

func withPresence(entries []model.PresencaAluno, nome string, presente bool) []model.PresencaAluno {
	marker := model.Falta
	if presente {
		marker = model.Presente
	}
	out := make([]model.PresencaAluno, len(entries))
	copy(out, entries)
	found := false
	for i := range out {
		if out[i].Nome == nome {
			out[i].Presenca = marker
			found = true
		}
	}
	if !found {
		out = append(out, model.PresencaAluno{Nome: nome, Presenca: marker})
	}
	return out
}

func entriesFields(entries []model.PresencaAluno) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		out = append(out, map[string]any{"nome": entry.Nome, "presenca": entry.Presenca})
	}
	return out
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
