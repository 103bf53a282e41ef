package agent

import (
	"fmt"

	"legischat/model"
)

const answerSystem = `Eres un asistente legal altamente calificado especializado en leyes ecuatorianas.
Responde de manera clara y precisa con base en los documentos legales provistos.`

const answerTemplate = `Contexto:
%s

Pregunta: %s

Instrucciones:
1. Si encontraste información relevante en los documentos legales proporcionados, responde utilizando esa información y cita la fuente específica (nombre del documento).
2. Si la pregunta hace referencia a artículos o secciones específicas de la ley y no has encontrado el contenido exacto, indícalo claramente.
3. Si no hay información en el contexto que responda directamente a la pregunta, pero puedes proporcionar información general sobre el tema legal, hazlo aclarando que es información general.
4. Si la pregunta no está relacionada con temas legales o está fuera del ámbito de la legislación ecuatoriana, proporciona una respuesta general basada en tu conocimiento.
5. Si el contexto está vacío, indica explícitamente que no encontraste información suficiente en los documentos disponibles; no inventes artículos ni citas.

Respuesta:`

const emptyContext = "(no se encontraron documentos relevantes)"

const condenseTemplate = `Dado el historial de conversación:
%s

y la nueva pregunta: %s

Reestructura la pregunta para que se entienda sin el historial, resolviendo pronombres y referencias implícitas.
Si la pregunta se refiere a artículos específicos o a un documento legal ecuatoriano concreto (constitución, código, ley, convenio), conserva esa referencia de forma explícita.
Responde únicamente con la pregunta reestructurada, en una sola línea, sin explicaciones ni listas.

Pregunta reestructurada:`

const summarizeSystem = `Eres un experto en derecho ecuatoriano que prepara textos para búsqueda semántica.`

const summarizeTemplate = `Reescribe el siguiente fragmento de un documento legal para optimizar su búsqueda.

Reglas:
1. Destaca la terminología jurídica y técnica.
2. Nombra explícitamente los artículos, capítulos, leyes o códigos que aparecen.
3. Sé conciso; no escribas un resumen narrativo.
4. Conserva literalmente todos los números de artículos, leyes y referencias normativas.
5. No omitas contenido necesario para responder preguntas sobre el fragmento.
Responde solo con el texto reescrito.

Fragmento:
%s

Texto optimizado:`

func answerPrompt(context, question string) model.Prompt {
	if context == "" {
		context = emptyContext
	}
	return model.Prompt{
		System: answerSystem,
		User:   fmt.Sprintf(answerTemplate, context, question),
	}
}

func condensePrompt(history, question string) model.Prompt {
	if history == "" {
		history = "(sin historial)"
	}
	return model.Prompt{User: fmt.Sprintf(condenseTemplate, history, question)}
}

func summarizePrompt(text string) model.Prompt {
	return model.Prompt{
		System: summarizeSystem,
		User:   fmt.Sprintf(summarizeTemplate, text),
	}
}
