package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"legischat/types"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		question string
		docType  types.DocType
		hint     string
	}{
		{"¿Qué dice la Constitución sobre la libertad de expresión?", types.DocTypeConstitution, ""},
		{"Derechos reconocidos por la CARTA MAGNA", types.DocTypeConstitution, ""},
		{"¿Qué establece el Código Civil sobre el matrimonio?", types.DocTypeCode, "codigo civil"},
		{"Pena del robo en el código   orgánico integral penal", types.DocTypeCode, "codigo organico"},
		{"¿Qué regula la Ley Orgánica de Educación Superior?", types.DocTypeStatute, "ley organica de educacion"},
		{"Requisitos según la ley de compañías", types.DocTypeStatute, "ley de companias"},
		{"Alcance de la Ley Humanitaria", types.DocTypeStatute, "ley humanitaria"},
		{"¿Qué convenio internacional protege a los refugiados?", types.DocTypeInternationalAgreement, ""},
		{"Tratado internacional sobre derechos del niño", types.DocTypeInternationalAgreement, ""},
		{"¿Qué convenios internacionales ha ratificado Ecuador?", types.DocTypeInternationalAgreement, ""},
	}
	for _, tc := range cases {
		d, ok := Detect(tc.question)
		if assert.True(t, ok, tc.question) {
			assert.Equal(t, tc.docType, d.DocType, tc.question)
			assert.Equal(t, tc.hint, d.Hint, tc.question)
		}
	}

	_, ok := Detect("¿Cuánto dura el período de prueba de un contrato?")
	assert.False(t, ok)
}

func TestDetectPriority(t *testing.T) {
	d, ok := Detect("¿La ley de movilidad contradice la Constitución o el Código Civil?")
	assert.True(t, ok)
	assert.Equal(t, types.DocTypeConstitution, d.DocType)

	d, ok = Detect("¿La ley de movilidad reforma el código penal?")
	assert.True(t, ok)
	assert.Equal(t, types.DocTypeCode, d.DocType)
	assert.Equal(t, "codigo penal", d.Hint)
}

func TestInferDetectionOverridesScope(t *testing.T) {
	e := New(false, nil)

	f := e.Infer("¿Qué dice la Constitución sobre la educación?", []types.DocType{types.DocTypeAll})
	assert.Equal(t, []types.DocType{types.DocTypeConstitution}, f.DocTypes)
	assert.Empty(t, f.FilenameContains)

	f = e.Infer("¿Qué dice la Constitución sobre la educación?", []types.DocType{types.DocTypeStatute})
	assert.Equal(t, []types.DocType{types.DocTypeConstitution}, f.DocTypes)
}

func TestInferScope(t *testing.T) {
	e := New(false, nil)
	question := "¿Cuáles son los requisitos para constituir una compañía?"

	f := e.Infer(question, []types.DocType{types.DocTypeStatute})
	assert.Equal(t, []types.DocType{types.DocTypeStatute}, f.DocTypes)

	f = e.Infer(question, []types.DocType{types.DocTypeStatute, types.DocTypeCode, types.DocTypeStatute})
	assert.Equal(t, []types.DocType{types.DocTypeStatute, types.DocTypeCode}, f.DocTypes)

	assert.True(t, e.Infer(question, []types.DocType{types.DocTypeAll}).IsEmpty())
	assert.True(t, e.Infer(question, []types.DocType{types.DocTypeCode, types.DocTypeAll}).IsEmpty())
	assert.True(t, e.Infer(question, nil).IsEmpty())
}

func TestInferFilenameHint(t *testing.T) {
	question := "¿Qué establece el Código Civil sobre el matrimonio?"

	f := New(true, nil).Infer(question, nil)
	assert.Equal(t, []types.DocType{types.DocTypeCode}, f.DocTypes)
	assert.Equal(t, "codigo civil", f.FilenameContains)

	f = New(false, nil).Infer(question, nil)
	assert.Empty(t, f.FilenameContains)
}

func TestEffectiveScope(t *testing.T) {
	assert.Equal(t, []types.DocType{types.DocTypeAll}, EffectiveScope(nil))
	assert.Equal(t, []types.DocType{types.DocTypeCode}, EffectiveScope([]types.DocType{types.DocTypeCode, types.DocTypeCode}))
}
