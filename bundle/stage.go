package bundle

import "fmt"

// Stage é o estágio do ciclo de vida de um bundle. A ordem numérica é a
// ordem do ciclo, então comparações como stage >= StageTokenized são válidas.
type Stage int

const (
	StagePending Stage = iota
	StageDocumentsUploaded
	StageDocumentsSigned
	StageTokenized
	StageReleased
)

var stageNames = [...]string{
	StagePending:           "PENDING",
	StageDocumentsUploaded: "DOCUMENTS_UPLOADED",
	StageDocumentsSigned:   "DOCUMENTS_SIGNED",
	StageTokenized:         "TOKENIZED",
	StageReleased:          "RELEASED",
}

func (s Stage) String() string {
	if s < StagePending || s > StageReleased {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

func (s Stage) MarshalText() ([]byte, error) {
	if s < StagePending || s > StageReleased {
		return nil, fmt.Errorf("estágio inválido: %d", int(s))
	}
	return []byte(stageNames[s]), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	st, err := ParseStage(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseStage converte o nome de um estágio.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("estágio desconhecido: %q", name)
}
