package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLeafTypeSortsStable(t *testing.T) {
	payload := []byte(`{"outputs":[{"predictions":{"predictions":[
		{"class":"apple_scab","confidence":0.4},
		{"class":"tomato_healthy","confidence":0.9},
		{"class":"grape_rot","confidence":0.4},
		{"class":"corn_rust","confidence":0.9}
	]}}]}`)

	got := NormalizeLeafType(payload)
	require.Equal(t, StatusOK, got.Status)
	assert.Equal(t, []Prediction{
		{Class: "tomato_healthy", Confidence: 0.9},
		{Class: "corn_rust", Confidence: 0.9},
		{Class: "apple_scab", Confidence: 0.4},
		{Class: "grape_rot", Confidence: 0.4},
	}, got.Predictions)
	assert.Equal(t, "tomato", PlantTypeFromLabel(got.Predictions[0].Class))
}

func TestNormalizeLeafTypeEmptyShapes(t *testing.T) {
	cases := map[string]string{
		"no outputs":           `{}`,
		"null outputs":         `{"outputs":null}`,
		"empty outputs":        `{"outputs":[]}`,
		"null first output":    `{"outputs":[null]}`,
		"no predictions":       `{"outputs":[{}]}`,
		"null predictions":     `{"outputs":[{"predictions":null}]}`,
		"empty inner list":     `{"outputs":[{"predictions":{"predictions":[]}}]}`,
		"missing inner list":   `{"outputs":[{"predictions":{"image":{"width":10}}}]}`,
		"items without labels": `{"outputs":[{"predictions":{"predictions":[{"confidence":0.8}]}}]}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			got := NormalizeLeafType([]byte(payload))
			assert.Equal(t, StatusEmpty, got.Status)
			assert.NotNil(t, got.Predictions)
			assert.Empty(t, got.Predictions)
			assert.NoError(t, got.Err)
		})
	}
}

func TestNormalizeLeafTypeMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":          `<html>oops</html>`,
		"array payload":     `[1,2]`,
		"null payload":      `null`,
		"outputs not array": `{"outputs":{"predictions":[]}}`,
		"output not object": `{"outputs":["x"]}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			got := NormalizeLeafType([]byte(payload))
			assert.Equal(t, StatusMalformed, got.Status)
			assert.ErrorIs(t, got.Err, ErrMalformedResponse)
			assert.Empty(t, got.Predictions)
		})
	}
}

func TestNormalizeLeafTypeAlternateKeys(t *testing.T) {
	payload := []byte(`{"outputs":[{"predictions":[
		{"class_name":"potato_early","score":0.7},
		{"label":"pepper_spot","confidence":1.4}
	]}]}`)

	got := NormalizeLeafType(payload)
	require.Equal(t, StatusOK, got.Status)
	assert.Equal(t, []Prediction{
		{Class: "pepper_spot", Confidence: 1},
		{Class: "potato_early", Confidence: 0.7},
	}, got.Predictions)
}

func TestNormalizeDiseaseUsesPlantKey(t *testing.T) {
	payload := []byte(`{"outputs":[{
		"apple_predictions":{"predictions":[{"class":"scab","confidence":0.3}]},
		"tomato_predictions":{"predictions":[{"class":"early_blight","confidence":0.87}]}
	}]}`)

	got := NormalizeDisease(payload, "tomato")
	require.Equal(t, StatusOK, got.Status)
	assert.Equal(t, []Prediction{{Class: "early_blight", Confidence: 0.87}}, got.Predictions)
}

func TestNormalizeDiseasePlantKeyWithEmptyListDoesNotFallBack(t *testing.T) {
	payload := []byte(`{"outputs":[{
		"apple_predictions":{"predictions":[{"class":"scab","confidence":0.3}]},
		"tomato_predictions":{"predictions":[]}
	}]}`)

	got := NormalizeDisease(payload, "tomato")
	assert.Equal(t, StatusEmpty, got.Status)
	assert.Empty(t, got.Predictions)
}

func TestNormalizeDiseaseFallsBackInKeyOrder(t *testing.T) {
	payload := []byte(`{"outputs":[{
		"zucchini_predictions":{"predictions":[{"class":"mildew","confidence":0.5}]},
		"tomato_predictions":null,
		"apple_predictions":{"predictions":[{"class":"scab","confidence":0.3},{"class":"rust","confidence":0.2}]},
		"corn_predictions":{"predictions":null},
		"image":{"width":640},
		"count":3
	}]}`)

	for _, plant := range []string{"tomato", "unknown"} {
		got := NormalizeDisease(payload, plant)
		require.Equal(t, StatusOK, got.Status, plant)
		assert.Equal(t, []Prediction{
			{Class: "mildew", Confidence: 0.5},
			{Class: "scab", Confidence: 0.3},
			{Class: "rust", Confidence: 0.2},
		}, got.Predictions, plant)
	}
}

func TestNormalizeDiseaseEmptyAndMalformed(t *testing.T) {
	got := NormalizeDisease([]byte(`{"outputs":[{"tomato_predictions":null}]}`), "tomato")
	assert.Equal(t, StatusEmpty, got.Status)

	for name, payload := range map[string]string{
		"no outputs":        `{}`,
		"empty outputs":     `{"outputs":[]}`,
		"output not object": `{"outputs":[[1]]}`,
		"not json":          `nope`,
	} {
		got := NormalizeDisease([]byte(payload), "tomato")
		assert.Equal(t, StatusMalformed, got.Status, name)
		assert.ErrorIs(t, got.Err, ErrMalformedResponse, name)
	}
}

func TestNormalizeDispatch(t *testing.T) {
	leaf := Normalize(StageLeafType, []byte(`{"outputs":[]}`), "ignored")
	assert.Equal(t, StatusEmpty, leaf.Status)

	disease := Normalize(StageDisease, []byte(`{"outputs":[{"x_predictions":{"predictions":[{"class":"a","confidence":0.1}]}}]}`), "x")
	assert.Equal(t, StatusOK, disease.Status)

	bad := Normalize(Stage("other"), []byte(`{}`), "")
	assert.Equal(t, StatusMalformed, bad.Status)
}

func TestPlantTypeFromLabel(t *testing.T) {
	assert.Equal(t, "tomato", PlantTypeFromLabel("tomato_healthy"))
	assert.Equal(t, "corn", PlantTypeFromLabel("corn"))
	assert.Equal(t, "bell", PlantTypeFromLabel("bell_pepper_spot"))
	assert.Equal(t, UnknownPlantType, PlantTypeFromLabel(""))
	assert.Equal(t, UnknownPlantType, PlantTypeFromLabel("_odd"))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "empty", StatusEmpty.String())
	assert.Equal(t, "malformed", StatusMalformed.String())
}
