package classifierserver

import (
	"context"
	"hash/fnv"
	"sort"

	"GrooveGauge/internal/emotion"
)

// Face 检测到的人脸及各情绪得分
type Face struct {
	Box      [4]int             `json:"box"`
	Emotions map[string]float64 `json:"emotions"`
}

// TopEmotion 得分最高的情绪，同分时按字母序取第一个
func (f Face) TopEmotion() string {
	labels := make([]string, 0, len(f.Emotions))
	for label := range f.Emotions {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	top := ""
	best := -1.0
	for _, label := range labels {
		if score := f.Emotions[label]; score > best {
			top, best = label, score
		}
	}
	return top
}

// Detector 人脸情绪检测器
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]Face, error)
}

// DetectorFunc 函数适配器
type DetectorFunc func(ctx context.Context, image []byte) ([]Face, error)

// Detect 实现 Detector
func (f DetectorFunc) Detect(ctx context.Context, image []byte) ([]Face, error) {
	return f(ctx, image)
}

// HashDetector 确定性参考检测器：按图像内容的FNV哈希生成0~3张人脸
type HashDetector struct{}

// Detect 实现 Detector
func (HashDetector) Detect(_ context.Context, image []byte) ([]Face, error) {
	h := fnv.New64a()
	h.Write(image)
	sum := h.Sum64()

	count := int(sum % 4)
	faces := make([]Face, 0, count)
	for i := 0; i < count; i++ {
		pick := int((sum >> (8 * (i + 1))) % uint64(len(emotion.Vocabulary)))
		scores := make(map[string]float64, len(emotion.Vocabulary))
		for j, label := range emotion.Vocabulary {
			scores[label] = 0.05 + 0.01*float64(j)
		}
		scores[emotion.Vocabulary[pick]] = 0.9

		faces = append(faces, Face{
			Box:      [4]int{40 * i, 20, 32, 32},
			Emotions: scores,
		})
	}
	return faces, nil
}

// TopOverall 各人脸最高情绪中出现最多的一个，同数时先出现者优先；无人脸返回空串
func TopOverall(faces []Face) string {
	counts := make(map[string]int)
	var order []string
	for _, face := range faces {
		top := face.TopEmotion()
		if top == "" {
			continue
		}
		if counts[top] == 0 {
			order = append(order, top)
		}
		counts[top]++
	}

	best := ""
	for _, label := range order {
		if counts[label] > counts[best] {
			best = label
		}
	}
	return best
}
