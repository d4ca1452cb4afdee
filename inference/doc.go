// Copyright (c) InteriorLens Authors.
// Licensed under the MIT License.

/*
Package inference 提供批量室内装修分类推理服务。

# 概述

Service 接收一批图片，逐张独立并发解码（errgroup 限流），解码失败的
图片在自己的下标得到错误结果；其余图片缩放到模型输入尺寸（双线性），
按 ImageNet 均值/方差归一化为 CHW，堆叠成一个张量后只做一次前向计算。
每行 logits 经 softmax 得到覆盖全部标签的置信度（保留 4 位小数），
arg-max 即预测标签。结果数量与顺序始终与输入一致。

# 核心类型

  - Model / Reentrant：模型抽象；未声明可重入的模型由服务串行调用。
  - LazyModel：sync.Once 保护的一次性加载，失败会被记住并以
    ErrModelUnavailable 报告，不会重试。
  - LinearModel：从 YAML/JSON 权重文件加载的线性分类头，作用于
    网格平均池化后的特征。
  - ResultCache：以模型版本与图片 SHA-256 为键的 Redis 结果缓存，
    故障时退化为未命中。

# 支持的格式

jpeg、png、gif、webp、bmp、tiff，webp/bmp/tiff 由 golang.org/x/image 提供。
*/
package inference
