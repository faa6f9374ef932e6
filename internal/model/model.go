package model

import (
	"crypto/rand"
	"encoding/json"
	"strings"

	"presenca/server/internal/store"
)

// Presence markers as stored on attendance entries.
const (
	Presente = "V"
	Falta    = "F"
)

type Turma struct {
	ID          string `json:"id"`
	NomeEscola  string `json:"nomeEscola"`
	AnoTurma    string `json:"anoTurma"`
	CodigoTurma string `json:"codigoTurma"`
	AlunosCount int    `json:"alunosCount"`
}

// Aluno carries the denormalized turma fields exactly as written at
// registration time; TurmaID is the authoritative link.
type Aluno struct {
	ID          string `json:"id"`
	Nome        string `json:"nome"`
	Sobrenome   string `json:"sobrenome,omitempty"`
	AnoCursando int    `json:"anoCursando"`
	TurmaID     string `json:"turmaId"`
	NomeTurma   string `json:"nomeTurma,omitempty"`
	CodigoTurma string `json:"codigoTurma,omitempty"`
}

// NomeCompleto is the join key between an aluno and attendance entries.
// Two alunos with the same full name are indistinguishable in reports.
func (a Aluno) NomeCompleto() string {
	return strings.TrimSpace(strings.TrimSpace(a.Nome) + " " + strings.TrimSpace(a.Sobrenome))
}

type PresencaAluno struct {
	Nome     string `json:"nome"`
	Presenca string `json:"presenca"`
}

// Frequencia is one attendance record: one turma, one calendar date
// (YYYY-MM-DD), one presence entry per roster student at recording time.
type Frequencia struct {
	ID      string          `json:"id"`
	TurmaID string          `json:"turmaId"`
	Data    string          `json:"data"`
	Alunos  []PresencaAluno `json:"alunos"`
}

// Presencas flattens the entries into a presence-by-name map. Entries
// sharing a name collapse onto the last one, matching how reports in the
// original data shape resolved name collisions.
func (f Frequencia) Presencas() map[string]bool {
	presencas := make(map[string]bool, len(f.Alunos))
	for _, entry := range f.Alunos {
		presencas[entry.Nome] = entry.Presenca == Presente
	}
	return presencas
}

const codigoAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NovoCodigoTurma generates the six-character upper base36 join code
// assigned to a turma at creation.
func NovoCodigoTurma() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codigoAlphabet[int(b)%len(codigoAlphabet)]
	}
	return string(buf), nil
}

// Document mapping

func TurmaFromDocument(doc store.Document) (Turma, error) {
	var turma Turma
	if err := decodeFields(doc.Fields, &turma); err != nil {
		return Turma{}, err
	}
	turma.ID = doc.ID
	return turma, nil
}

func AlunoFromDocument(doc store.Document) (Aluno, error) {
	var aluno Aluno
	if err := decodeFields(doc.Fields, &aluno); err != nil {
		return Aluno{}, err
	}
	aluno.ID = doc.ID
	return aluno, nil
}

func FrequenciaFromDocument(doc store.Document) (Frequencia, error) {
	var frequencia Frequencia
	if err := decodeFields(doc.Fields, &frequencia); err != nil {
		return Frequencia{}, err
	}
	frequencia.ID = doc.ID
	return frequencia, nil
}

func (t Turma) Fields() map[string]any      { return encodeFields(t) }
func (a Aluno) Fields() map[string]any      { return encodeFields(a) }
func (f Frequencia) Fields() map[string]any { return encodeFields(f) }

func decodeFields(fields map[string]any, out any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func encodeFields(in any) map[string]any {
	raw, err := json.Marshal(in)
	if err != nil {
		return map[string]any{}
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return map[string]any{}
	}
	delete(fields, "id")
	return fields
}
