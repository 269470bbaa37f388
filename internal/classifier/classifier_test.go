package classifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupwatch/group-indexer/internal/classifier"
	"github.com/groupwatch/group-indexer/internal/domain"
)

func newDefaultClassifier(t *testing.T) classifier.Classifier {
	rules, err := classifier.DefaultRules()
	require.NoError(t, err)
	return classifier.New(rules)
}

func TestClassifier_Classify(t *testing.T) {
	c := newDefaultClassifier(t)

	tests := []struct {
		name     string
		content  string
		expected domain.ClassificationHints
	}{
		{
			name:    "role-play with audit and no sexual content",
			content: "古风语C群\n进群需要审核\n群号：12345678",
			expected: domain.ClassificationHints{
				GroupType:        domain.GroupTypeRolePlay,
				Worldview:        domain.WorldviewAncientOriginal,
				HasSexualContent: false,
				NoAuditNoSetting: false,
			},
		},
		{
			name:    "sexual flag independent of category",
			content: "R18 交流群 77777",
			expected: domain.ClassificationHints{
				GroupType:        domain.GroupTypeExchange,
				Worldview:        domain.WorldviewUnspecified,
				HasSexualContent: true,
			},
		},
		{
			name:    "lowercase trigger keyword",
			content: "r18向 语c",
			expected: domain.ClassificationHints{
				GroupType:        domain.GroupTypeRolePlay,
				Worldview:        domain.WorldviewUnspecified,
				HasSexualContent: true,
			},
		},
		{
			name:    "tie resolved by priority",
			content: "语C 交流",
			expected: domain.ClassificationHints{
				GroupType: domain.GroupTypeRolePlay,
				Worldview: domain.WorldviewUnspecified,
			},
		},
		{
			name:    "highest count wins over priority",
			content: "交流 交流 语C",
			expected: domain.ClassificationHints{
				GroupType: domain.GroupTypeExchange,
				Worldview: domain.WorldviewUnspecified,
			},
		},
		{
			name:    "no keywords",
			content: "hello world 12345",
			expected: domain.ClassificationHints{
				GroupType: domain.GroupTypeUnclassified,
				Worldview: domain.WorldviewUnspecified,
			},
		},
		{
			name:    "no audit no setting flag",
			content: "现原语C 无审无设 秒进",
			expected: domain.ClassificationHints{
				GroupType:        domain.GroupTypeRolePlay,
				Worldview:        domain.WorldviewModernOriginal,
				NoAuditNoSetting: true,
			},
		},
		{
			name:    "worldview tie resolved by priority",
			content: "同人 科幻",
			expected: domain.ClassificationHints{
				GroupType: domain.GroupTypeUnclassified,
				Worldview: domain.WorldviewFandom,
			},
		},
		{
			name:    "spam",
			content: "兼职刷单 日结 加微信",
			expected: domain.ClassificationHints{
				GroupType: domain.GroupTypeSpam,
				Worldview: domain.WorldviewUnspecified,
			},
		},
		{
			name:    "empty content",
			content: "",
			expected: domain.ClassificationHints{
				GroupType: domain.GroupTypeUnclassified,
				Worldview: domain.WorldviewUnspecified,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.Classify(tt.content)
			assert.Equal(t, tt.expected, result.Hints)
		})
	}
}

func TestClassifier_Tags(t *testing.T) {
	c := newDefaultClassifier(t)

	result := c.Classify("#古风 #BL ＃日常 纯爱向\n#古风")
	assert.Equal(t, []string{"BL", "古风", "日常", "纯爱"}, result.Tags)

	result = c.Classify("没有标签")
	assert.NotNil(t, result.Tags)
	assert.Empty(t, result.Tags)
}

func TestClassifier_Deterministic(t *testing.T) {
	c := newDefaultClassifier(t)

	content := "#西幻 魔法学院演绎 全性向 审核制"
	first := c.Classify(content)
	for range 10 {
		assert.Equal(t, first, c.Classify(content))
	}
	assert.Equal(t, domain.WorldviewWesternFantasy, first.Hints.Worldview)
	assert.Equal(t, []string{"全性向", "西幻"}, first.Tags)
}
