package wire

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagName(t *testing.T) {
	assert.Equal(t, "S", TagName(String("a")))
	assert.Equal(t, "N", TagName(NumberInt(1)))
	assert.Equal(t, "BOOL", TagName(Bool(true)))
	assert.Equal(t, "NULL", TagName(Null()))
	assert.Equal(t, "B", TagName(Binary([]byte{1})))
	assert.Equal(t, "L", TagName(List()))
	assert.Equal(t, "M", TagName(Map(nil)))
	assert.Equal(t, "SS", TagName(StringSet("a")))
	assert.Equal(t, "NS", TagName(NumberSet("1")))
	assert.Equal(t, "BS", TagName(BinarySet([]byte{1})))
	assert.Equal(t, "missing", TagName(nil))
}

func TestEqualSetsIgnoreOrder(t *testing.T) {
	assert.True(t, Equal(StringSet("a", "b", "c"), StringSet("c", "a", "b")))
	assert.True(t, Equal(NumberSet("1", "2"), NumberSet("2", "1")))
	assert.True(t, Equal(BinarySet([]byte{1}, []byte{2}), BinarySet([]byte{2}, []byte{1})))
	assert.False(t, Equal(StringSet("a", "b"), StringSet("a", "x")))
}

func TestEqualListsAreOrdered(t *testing.T) {
	assert.True(t, Equal(List(String("a"), String("b")), List(String("a"), String("b"))))
	assert.False(t, Equal(List(String("a"), String("b")), List(String("b"), String("a"))))
}

func TestEqualDistinguishesNullFromMissing(t *testing.T) {
	a := Map(map[string]types.AttributeValue{"k": Null()})
	b := Map(map[string]types.AttributeValue{})
	assert.False(t, Equal(a, b))
}

func TestEqualNested(t *testing.T) {
	mk := func() types.AttributeValue {
		return Map(map[string]types.AttributeValue{
			"name": String("widget"),
			"tags": StringSet("x", "y"),
			"dims": List(NumberInt(3), NumberInt(4)),
			"meta": Map(map[string]types.AttributeValue{"ok": Bool(true)}),
		})
	}
	assert.True(t, Equal(mk(), mk()))
}

func TestDeepCopyDoesNotAlias(t *testing.T) {
	orig := Map(map[string]types.AttributeValue{
		"list": List(String("a")),
		"bin":  Binary([]byte{1, 2}),
	})
	cp := DeepCopy(orig)
	require.True(t, Equal(orig, cp))

	cp.(*types.AttributeValueMemberM).Value["list"].(*types.AttributeValueMemberL).Value[0] = String("mutated")
	cp.(*types.AttributeValueMemberM).Value["bin"].(*types.AttributeValueMemberB).Value[0] = 9

	assert.Equal(t, "a", orig.(*types.AttributeValueMemberM).Value["list"].(*types.AttributeValueMemberL).Value[0].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, byte(1), orig.(*types.AttributeValueMemberM).Value["bin"].(*types.AttributeValueMemberB).Value[0])
}

func TestFormatFloatInvariant(t *testing.T) {
	assert.Equal(t, "1.5", FormatFloat(1.5))
	assert.Equal(t, "-0.25", FormatFloat(-0.25))
	assert.Equal(t, "3", FormatFloat(3))
}
