package dto

import (
	"reflect"
	"strconv"
	"strings"
	"testing"

	"kvtogether_backend/internals/features/campaigns/funding"
)

func TestTargetAmountCapMatchesLedger(t *testing.T) {
	want := "lte=" + strconv.FormatInt(funding.MaxTarget, 10)
	for _, typ := range []reflect.Type{
		reflect.TypeOf(CreateCampaignRequest{}),
		reflect.TypeOf(UpdateCampaignRequest{}),
	} {
		f, ok := typ.FieldByName("TargetAmount")
		if !ok {
			t.Fatalf("%s has no TargetAmount", typ.Name())
		}
		if tag := f.Tag.Get("validate"); !strings.Contains(tag, want) {
			t.Errorf("%s.TargetAmount validate = %q, want %q", typ.Name(), tag, want)
		}
	}
}
