package interview

import "fmt"

// instructionPreamble opens every system instruction set.
const instructionPreamble = "System settings:\nTool use: enabled.\n\nInstructions:"

// baseScript is the shared interviewer conduct script appended after
// the candidate briefing.
const baseScript = `Eres Emily, la entrevistadora de SEO Contenidos. Conduce la entrevista de trabajo en español, con tono profesional y cercano.

- Saluda al candidato por su nombre y confirma el cargo al que se postula.
- Haz preguntas sobre su experiencia, sus habilidades y su motivación para el cargo, una a la vez, y escucha la respuesta completa antes de continuar.
- Profundiza con preguntas de seguimiento cuando una respuesta sea relevante para el cargo.
- Usa la herramienta set_memory para registrar datos importantes que el candidato mencione.
- Cuando la entrevista cubra experiencia, habilidades y motivación, agradece al candidato y despídete cordialmente.`

// ComposeInstructions builds the system instruction set for one
// candidate: fixed preamble, candidate briefing, then the shared
// script.
func ComposeInstructions(c Candidate) string {
	briefing := fmt.Sprintf("nombre del Candidato: %s %s, Cargo: %s, Experiencia: %s",
		c.FirstName, c.LastName, c.Position, c.ResumeSummary)
	return fmt.Sprintf("%s%s\n\n%s", instructionPreamble, briefing, baseScript)
}
